package api

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed backend exchange.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindUnauthenticated
	KindInvalidResponse
	KindServer
	KindValidation
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrNetwork         = errors.New("network error")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidResponse = errors.New("invalid response")
	ErrServer          = errors.New("server error")
	ErrValidation      = errors.New("validation error")
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalidResponse:
		return "invalid_response"
	case KindServer:
		return "server"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindUnauthenticated:
		return ErrUnauthenticated
	case KindInvalidResponse:
		return ErrInvalidResponse
	case KindServer:
		return ErrServer
	case KindValidation:
		return ErrValidation
	default:
		return nil
	}
}

// Error is returned by every Client operation.
type Error struct {
	Kind    Kind
	Op      string   // "login", "register", "analyze"
	Status  int      // HTTP status, 0 when no response was received
	Message string   // server- or client-provided detail
	Fields  []string // missing form fields for KindValidation
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	sb.WriteString(": ")
	sb.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&sb, " (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// NewValidationError reports form fields that must be filled in before op.
func NewValidationError(op string, missing []string) error {
	return &Error{
		Kind:    KindValidation,
		Op:      op,
		Message: "missing " + strings.Join(missing, ", "),
		Fields:  missing,
	}
}

// UserMessage turns err into the one sentence shown in a failure dialog.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return "Something went wrong: " + err.Error()
	}
	switch apiErr.Kind {
	case KindNetwork:
		return "Network error. Check your internet connection and try again."
	case KindUnauthenticated:
		if apiErr.Op == "login" {
			return "Wrong username or password."
		}
		return "Your login has expired. Please log in again."
	case KindInvalidResponse:
		return "The server sent an unexpected response."
	case KindServer:
		if apiErr.Message != "" {
			return "Request failed: " + apiErr.Message
		}
		return "The server could not process the request. Please try again."
	case KindValidation:
		if len(apiErr.Fields) > 0 {
			return "Please fill in: " + strings.Join(apiErr.Fields, ", ") + "."
		}
		return "Please check the form: " + apiErr.Message + "."
	default:
		return apiErr.Error()
	}
}
