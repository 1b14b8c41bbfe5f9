package api

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/wecanfarm/wecanfarm/internal/session"
)

// Login exchanges credentials for an access token. A 2xx response missing
// the token, the username or a positive user id is KindInvalidResponse.
// Populating the session is left to the caller.
func (c *Client) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	const op = "login"
	req.Username = strings.TrimSpace(req.Username)
	if err := req.Validate(); err != nil {
		return LoginResult{}, err
	}

	data, status, err := c.post(ctx, c.auth, op, "/api/auth/login", "", req)
	if err != nil {
		return LoginResult{}, err
	}

	var body loginResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return LoginResult{}, &Error{Kind: KindInvalidResponse, Op: op, Status: status, Err: err}
	}
	var missing []string
	if body.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if body.Username == "" {
		missing = append(missing, "username")
	}
	if body.UserID <= 0 {
		missing = append(missing, "user_id")
	}
	if len(missing) > 0 {
		return LoginResult{}, &Error{
			Kind:    KindInvalidResponse,
			Op:      op,
			Status:  status,
			Message: "missing or invalid " + strings.Join(missing, ", "),
		}
	}

	c.log.Info().Int("user_id", body.UserID).Str("role", body.Role).Msg("logged in")
	return LoginResult{
		Token:     body.AccessToken,
		TokenType: body.TokenType,
		UserID:    body.UserID,
		Username:  body.Username,
		Role:      session.ParseRole(body.Role),
	}, nil
}

// Register creates an account. It does not log the new user in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	const op = "register"
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := req.Validate(); err != nil {
		return RegisterResult{}, err
	}

	data, status, err := c.post(ctx, c.auth, op, "/api/auth/register", "", req)
	if err != nil {
		return RegisterResult{}, err
	}

	var body registerResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return RegisterResult{}, &Error{Kind: KindInvalidResponse, Op: op, Status: status, Err: err}
	}
	if body.UserID <= 0 {
		return RegisterResult{}, &Error{
			Kind:    KindInvalidResponse,
			Op:      op,
			Status:  status,
			Message: "missing or invalid user_id",
		}
	}

	c.log.Info().Int("user_id", body.UserID).Msg("registered")
	return RegisterResult{Message: body.Message, UserID: body.UserID}, nil
}
