package api

import (
	"context"
	"encoding/base64"
	"errors"
)

// Analyze uploads an encoded image for disease detection. An empty token
// fails with KindUnauthenticated before any request is made. Recording the
// result is the caller's job.
func (c *Client) Analyze(ctx context.Context, image []byte, token string) (DetectionResponse, error) {
	const op = "analyze"
	if token == "" {
		return DetectionResponse{}, &Error{Kind: KindUnauthenticated, Op: op, Message: "login required"}
	}
	if len(image) == 0 {
		return DetectionResponse{}, &Error{Kind: KindValidation, Op: op, Message: "image is empty", Fields: []string{"image"}}
	}

	req := analyzeRequest{ImageBase64: base64.StdEncoding.EncodeToString(image)}
	data, status, err := c.post(ctx, c.analyze, op, "/api/analyze", token, req)
	if err != nil {
		return DetectionResponse{}, err
	}

	resp, err := DecodeDetectionResponse(data)
	if err != nil {
		var schemaErr *schemaError
		if errors.As(err, &schemaErr) {
			return DetectionResponse{}, &Error{Kind: KindInvalidResponse, Op: op, Status: status, Message: schemaErr.msg}
		}
		return DetectionResponse{}, &Error{Kind: KindInvalidResponse, Op: op, Status: status, Message: "unreadable analysis result", Err: err}
	}

	c.log.Info().Int("detections", resp.TotalDetections).Msg("analysis complete")
	return resp, nil
}
