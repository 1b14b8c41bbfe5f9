package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/wecanfarm/wecanfarm/internal/session"
)

// newTestClient points a Client at handler and counts the requests it serves.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(ts.Close)

	c, err := NewClient(Options{
		BaseURL:      ts.URL + "/",
		BypassHeader: DefaultBypassHeader,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, &calls
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestLoginSuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
			t.Errorf("Content-Type = %q", got)
		}
		if got := r.Header.Get(DefaultBypassHeader); got != "true" {
			t.Errorf("bypass header = %q, want true", got)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not send an Authorization header")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["username"] != "kim" || body["password"] != "secret" {
			t.Errorf("unexpected body %v", body)
		}
		writeJSON(w, http.StatusOK, `{"access_token":"tok-123","token_type":"bearer","user_id":7,"username":"kim","role":"FARMER"}`)
	})

	res, err := c.Login(context.Background(), LoginRequest{Username: "kim", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "tok-123" || res.UserID != 7 || res.Username != "kim" || res.Role != session.RoleFarmer {
		t.Errorf("unexpected result %+v", res)
	}
	user := res.User()
	if user.DisplayName != "kim" || !user.IsFarmer() {
		t.Errorf("unexpected user %+v", user)
	}
}

// A 200 with a missing or non-positive user_id is still an invalid response.
func TestLoginRejectsBadUserID(t *testing.T) {
	bodies := []string{
		`{"access_token":"tok","token_type":"bearer","username":"kim","role":"USER"}`,
		`{"access_token":"tok","token_type":"bearer","user_id":0,"username":"kim","role":"USER"}`,
		`{"access_token":"tok","token_type":"bearer","user_id":-3,"username":"kim","role":"USER"}`,
		`{"access_token":"","token_type":"bearer","user_id":3,"username":"kim","role":"USER"}`,
		`{"access_token":"tok","token_type":"bearer","user_id":3,"username":"","role":"USER"}`,
		`로그인 성공`,
	}
	for _, body := range bodies {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, body)
		})
		_, err := c.Login(context.Background(), LoginRequest{Username: "kim", Password: "pw"})
		if !errors.Is(err, ErrInvalidResponse) {
			t.Errorf("body %s: expected ErrInvalidResponse, got %v", body, err)
		}
	}
}

func TestLoginWrongCredentials(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"detail":"Incorrect username or password"}`)
	})
	_, err := c.Login(context.Background(), LoginRequest{Username: "kim", Password: "bad"})
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Message != "Incorrect username or password" || apiErr.Status != 401 {
		t.Errorf("unexpected error detail: %#v", apiErr)
	}
	if msg := UserMessage(err); msg != "Wrong username or password." {
		t.Errorf("UserMessage = %q", msg)
	}
}

func TestLoginValidationSkipsNetwork(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})
	_, err := c.Login(context.Background(), LoginRequest{Username: "  ", Password: ""})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var apiErr *Error
	errors.As(err, &apiErr)
	if len(apiErr.Fields) != 2 {
		t.Errorf("expected 2 missing fields, got %v", apiErr.Fields)
	}
	if n := atomic.LoadInt32(calls); n != 0 {
		t.Errorf("expected no requests, got %d", n)
	}
}

func TestRegister(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/register" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		want := map[string]string{
			"username":  "lee",
			"email":     "lee@example.com",
			"password":  "pw",
			"full_name": "Lee Farmer",
			"role":      "FARMER",
		}
		for k, v := range want {
			if body[k] != v {
				t.Errorf("body[%q] = %q, want %q", k, body[k], v)
			}
		}
		if len(body) != len(want) {
			t.Errorf("unexpected extra fields in %v", body)
		}
		writeJSON(w, http.StatusCreated, `{"message":"User registered successfully","user_id":12}`)
	})

	res, err := c.Register(context.Background(), RegisterRequest{
		Username:        "lee",
		Email:           "lee@example.com",
		Password:        "pw",
		ConfirmPassword: "pw",
		FullName:        "Lee Farmer",
		Role:            session.RoleFarmer,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.UserID != 12 || res.Message != "User registered successfully" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRegisterFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"zero user id", http.StatusOK, `{"message":"ok","user_id":0}`, ErrInvalidResponse},
		{"not json", http.StatusOK, `<html>warning</html>`, ErrInvalidResponse},
		{"duplicate", http.StatusBadRequest, `{"detail":"Username already registered"}`, ErrServer},
		{"server down", http.StatusBadGateway, ``, ErrServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := c.Register(context.Background(), RegisterRequest{
				Username: "lee", Email: "lee@example.com", Password: "pw", ConfirmPassword: "pw", FullName: "Lee", Role: session.RoleUser,
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRegisterPasswordMismatch(t *testing.T) {
	for _, confirm := range []string{"b", ""} {
		c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
		_, err := c.Register(context.Background(), RegisterRequest{
			Username: "lee", Email: "e@x", Password: "a", ConfirmPassword: confirm, FullName: "Lee", Role: session.RoleUser,
		})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("confirm %q: expected ErrValidation, got %v", confirm, err)
		}
		if atomic.LoadInt32(calls) != 0 {
			t.Errorf("confirm %q: validation failure must not reach the server", confirm)
		}
	}
}

const twoDetections = `{
	"image_base64": "aGVsbG8=",
	"total_detections": 2,
	"detections": [
		{"bbox":[1,2,30,40],"crop_type":"pepper","disease_status":"healthy","disease_confidence":0.91,"yolo_confidence":0.88,"label":"pepper healthy"},
		{"bbox":[5,6,70,80],"crop_type":"pepper","disease_status":"bacterial_spot","disease_confidence":0.77,"yolo_confidence":0.65,"label":"pepper spot"}
	]
}`

func TestAnalyzeSuccess(t *testing.T) {
	image := []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analyze" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}
		var body analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(body.ImageBase64)
		if err != nil || string(decoded) != string(image) {
			t.Errorf("image payload did not round-trip: %v", err)
		}
		writeJSON(w, http.StatusOK, twoDetections)
	})

	resp, err := c.Analyze(context.Background(), image, "tok-123")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if resp.TotalDetections != 2 || len(resp.Detections) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Detections[1].BoundingBox != (BBox{5, 6, 70, 80}) {
		t.Errorf("bbox = %v", resp.Detections[1].BoundingBox)
	}
	if resp.Detections[0].ModelConfidence != 0.88 {
		t.Errorf("yolo_confidence not mapped: %v", resp.Detections[0].ModelConfidence)
	}
}

// An empty token fails fast without touching the network.
func TestAnalyzeWithoutTokenMakesNoRequest(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, twoDetections)
	})
	_, err := c.Analyze(context.Background(), []byte("img"), "")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if n := atomic.LoadInt32(calls); n != 0 {
		t.Errorf("expected 0 requests, got %d", n)
	}
}

func TestAnalyzeStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusUnauthorized, `{"detail":"Could not validate credentials"}`, ErrUnauthenticated},
		{http.StatusForbidden, ``, ErrUnauthenticated},
		{http.StatusInternalServerError, `model crashed`, ErrServer},
		{http.StatusOK, `not json at all`, ErrInvalidResponse},
		{http.StatusOK, `{"total_detections":0}`, ErrInvalidResponse},
		{http.StatusOK, `{"total_detections":1,"detections":[{"bbox":[1,2,3],"crop_type":"x","disease_status":"y","disease_confidence":0.5,"yolo_confidence":0.5,"label":"z"}]}`, ErrInvalidResponse},
		{http.StatusOK, `{"total_detections":1,"detections":[{"bbox":[1,2,3,4],"disease_confidence":0.5,"yolo_confidence":0.5}]}`, ErrInvalidResponse},
		{http.StatusOK, `{"total_detections":3,"detections":[]}`, ErrInvalidResponse},
		{http.StatusOK, `{"detections":[{"bbox":[1,2,3,4],"crop_type":"x","disease_status":"y","disease_confidence":1.5,"yolo_confidence":0.5}]}`, ErrInvalidResponse},
	}
	for _, tt := range tests {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, tt.status, tt.body)
		})
		_, err := c.Analyze(context.Background(), []byte("img"), "tok")
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d body %q: expected %v, got %v", tt.status, tt.body, tt.want, err)
		}
	}
}

func TestAnalyzeNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c, err := NewClient(Options{BaseURL: url, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Analyze(context.Background(), []byte("img"), "tok")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if KindOf(err) != KindNetwork {
		t.Errorf("KindOf = %v", KindOf(err))
	}
}

func TestReadTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}))
	defer ts.Close()
	defer close(release)

	c, err := NewClient(Options{
		BaseURL:            ts.URL,
		AuthConnectTimeout: time.Second,
		AuthReadTimeout:    100 * time.Millisecond,
		Logger:             zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Login(context.Background(), LoginRequest{Username: "kim", Password: "pw"})
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork on read timeout, got %v", err)
	}
}

func TestBypassHeaderOmittedWhenEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header[http.CanonicalHeaderKey(DefaultBypassHeader)]; ok {
			t.Error("bypass header should be omitted")
		}
		writeJSON(w, http.StatusOK, `{"access_token":"t","user_id":1,"username":"u","role":"USER"}`)
	}))
	defer ts.Close()

	c, err := NewClient(Options{BaseURL: ts.URL, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Login(context.Background(), LoginRequest{Username: "u", Password: "p"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestNewClientNormalizesBaseURL(t *testing.T) {
	c, err := NewClient(Options{BaseURL: "driven-sweeping-sheep.ngrok-free.app/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.BaseURL() != "https://driven-sweeping-sheep.ngrok-free.app" {
		t.Errorf("BaseURL = %q", c.BaseURL())
	}
	if _, err := NewClient(Options{}); err == nil {
		t.Error("expected error for empty base URL")
	}
}

func TestClamp(t *testing.T) {
	if got := clamp(0, MaxAuthReadTimeout); got != MaxAuthReadTimeout {
		t.Errorf("zero should default to bound, got %v", got)
	}
	if got := clamp(5*time.Minute, MaxAnalyzeReadTimeout); got != MaxAnalyzeReadTimeout {
		t.Errorf("oversized should clamp, got %v", got)
	}
	if got := clamp(2*time.Second, MaxAuthConnectTimeout); got != 2*time.Second {
		t.Errorf("in-range value changed: %v", got)
	}
}

func TestErrorDetailTruncatesOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("서버 오류", 100)
	got := errorDetail([]byte(body), http.StatusInternalServerError)
	if !utf8.ValidString(got) {
		t.Fatalf("detail is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != maxDetailRunes+1 {
		t.Errorf("detail has %d runes, want %d plus the ellipsis", n, maxDetailRunes)
	}
	if !strings.HasPrefix(body, strings.TrimSuffix(got, "…")) {
		t.Error("detail should be a prefix of the body")
	}
}
