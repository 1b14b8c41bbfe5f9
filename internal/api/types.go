package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wecanfarm/wecanfarm/internal/session"
)

// BBox is a detection bounding box: x1, y1, x2, y2 in image pixels.
type BBox [4]int

// UnmarshalJSON accepts exactly four integers.
func (b *BBox) UnmarshalJSON(data []byte) error {
	var v []int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("bbox must have 4 coordinates, got %d", len(v))
	}
	copy(b[:], v)
	return nil
}

// Detection is one classified object in an analyzed image.
type Detection struct {
	BoundingBox       BBox    `json:"bbox"`
	CropType          string  `json:"crop_type"`
	DiseaseStatus     string  `json:"disease_status"`
	DiseaseConfidence float64 `json:"disease_confidence"`
	ModelConfidence   float64 `json:"yolo_confidence"`
	Label             string  `json:"label"`
}

// DetectionResponse is the body of a successful /api/analyze call.
type DetectionResponse struct {
	ImageBase64     string      `json:"image_base64,omitempty"` // annotated image from the server
	TotalDetections int         `json:"total_detections"`
	Detections      []Detection `json:"detections"`
}

// wireDetectionResponse mirrors DetectionResponse with optional fields so
// absent keys can be told apart from zero values.
type wireDetectionResponse struct {
	ImageBase64     string           `json:"image_base64"`
	TotalDetections *int             `json:"total_detections"`
	Detections      *[]wireDetection `json:"detections"`
}

// wireDetection keeps the bbox loose so a wrong coordinate count is a schema
// violation rather than a decode failure.
type wireDetection struct {
	BoundingBox       []int   `json:"bbox"`
	CropType          string  `json:"crop_type"`
	DiseaseStatus     string  `json:"disease_status"`
	DiseaseConfidence float64 `json:"disease_confidence"`
	ModelConfidence   float64 `json:"yolo_confidence"`
	Label             string  `json:"label"`
}

// schemaError marks a body that parsed as JSON but broke the response schema.
type schemaError struct{ msg string }

func (e *schemaError) Error() string { return e.msg }

// DecodeDetectionResponse parses and validates an analysis response body.
// A missing total_detections is taken as len(detections). Every detection
// needs a four-integer bbox, a crop type and a disease status.
func DecodeDetectionResponse(data []byte) (DetectionResponse, error) {
	var wire wireDetectionResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return DetectionResponse{}, err
	}
	if wire.Detections == nil {
		return DetectionResponse{}, &schemaError{"detections field missing"}
	}
	if wire.TotalDetections != nil && *wire.TotalDetections != len(*wire.Detections) {
		return DetectionResponse{}, &schemaError{fmt.Sprintf("total_detections %d does not match %d detections",
			*wire.TotalDetections, len(*wire.Detections))}
	}

	resp := DetectionResponse{
		ImageBase64:     wire.ImageBase64,
		TotalDetections: len(*wire.Detections),
		Detections:      make([]Detection, 0, len(*wire.Detections)),
	}
	for i, d := range *wire.Detections {
		if len(d.BoundingBox) != 4 {
			return DetectionResponse{}, &schemaError{fmt.Sprintf("detection %d: bbox must have 4 coordinates, got %d", i, len(d.BoundingBox))}
		}
		var missing []string
		if strings.TrimSpace(d.CropType) == "" {
			missing = append(missing, "crop_type")
		}
		if strings.TrimSpace(d.DiseaseStatus) == "" {
			missing = append(missing, "disease_status")
		}
		if len(missing) > 0 {
			return DetectionResponse{}, &schemaError{fmt.Sprintf("detection %d: missing %s", i, strings.Join(missing, ", "))}
		}
		if d.DiseaseConfidence < 0 || d.DiseaseConfidence > 1 || d.ModelConfidence < 0 || d.ModelConfidence > 1 {
			return DetectionResponse{}, &schemaError{fmt.Sprintf("detection %d: confidence out of range", i)}
		}
		resp.Detections = append(resp.Detections, Detection{
			BoundingBox:       BBox{d.BoundingBox[0], d.BoundingBox[1], d.BoundingBox[2], d.BoundingBox[3]},
			CropType:          d.CropType,
			DiseaseStatus:     d.DiseaseStatus,
			DiseaseConfidence: d.DiseaseConfidence,
			ModelConfidence:   d.ModelConfidence,
			Label:             d.Label,
		})
	}
	return resp, nil
}

type analyzeRequest struct {
	ImageBase64 string `json:"image_base64"`
}

// LoginRequest is the login form.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate reports missing fields before anything is sent.
func (r LoginRequest) Validate() error {
	var missing []string
	if r.Username == "" {
		missing = append(missing, "username")
	}
	if r.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return NewValidationError("login", missing)
	}
	return nil
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      int    `json:"user_id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
}

// LoginResult is a validated login response.
type LoginResult struct {
	Token     string
	TokenType string
	UserID    int
	Username  string
	Role      session.Role
}

// User builds the session identity from the login result.
// The backend does not return a full name on login, so the username doubles
// as display name.
func (r LoginResult) User() session.UserInfo {
	return session.UserInfo{
		ID:          r.UserID,
		Username:    r.Username,
		DisplayName: r.Username,
		Role:        r.Role,
	}
}

// RegisterRequest is the sign-up form. ConfirmPassword is checked locally
// and never sent.
type RegisterRequest struct {
	Username        string       `json:"username"`
	Email           string       `json:"email"`
	Password        string       `json:"password"`
	ConfirmPassword string       `json:"-"`
	FullName        string       `json:"full_name"`
	Role            session.Role `json:"role"`
}

// Validate reports missing fields and a mismatched confirmation.
func (r RegisterRequest) Validate() error {
	var missing []string
	if r.Username == "" {
		missing = append(missing, "username")
	}
	if r.Email == "" {
		missing = append(missing, "email")
	}
	if r.Password == "" {
		missing = append(missing, "password")
	}
	if r.FullName == "" {
		missing = append(missing, "full name")
	}
	if !r.Role.Valid() {
		missing = append(missing, "role")
	}
	if len(missing) > 0 {
		return NewValidationError("register", missing)
	}
	if r.ConfirmPassword != r.Password {
		return &Error{Kind: KindValidation, Op: "register", Message: "passwords do not match"}
	}
	return nil
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  int    `json:"user_id"`
}

// RegisterResult is a validated registration response.
type RegisterResult struct {
	Message string
	UserID  int
}
