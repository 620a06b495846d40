package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// Error is a non-2xx response from the backend.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	// Detail is the FastAPI "detail" field, flattened to text.
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// StatusCode returns the HTTP status of err if it wraps an *Error, else 0.
func StatusCode(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool { return StatusCode(err) == http.StatusNotFound }

func newError(method, path string, status int, body []byte) *Error {
	return &Error{Method: method, Path: path, StatusCode: status, Detail: parseDetail(body)}
}

// parseDetail understands both {"detail": "text"} and the validation form
// {"detail": [{"loc": [...], "msg": "..."}]}. Anything else is returned
// as trimmed text.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return text
	}

	var items []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if len(it.Loc) > 0 {
				parts = append(parts, fmt.Sprintf("%v: %s", it.Loc[len(it.Loc)-1], it.Msg))
			} else {
				parts = append(parts, it.Msg)
			}
		}
		return strings.Join(parts, "; ")
	}

	return string(envelope.Detail)
}

// classify turns 401/403 into *domain.AuthError wrapping the *Error.
func classify(e *Error) error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return &domain.AuthError{Reason: "token rejected", Err: e}
	case http.StatusForbidden:
		return &domain.AuthError{Reason: "permission denied", Forbidden: true, Err: e}
	}
	return e
}
