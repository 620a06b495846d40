package domain

import (
	"errors"
	"fmt"
)

// ErrNotLoggedIn is returned when a command needs a token and none is stored.
var ErrNotLoggedIn = errors.New("not logged in")

// AuthError means the token is missing, invalid or lacks the required role.
// Forbidden marks the role case; logging in again does not help there.
type AuthError struct {
	Reason    string
	Forbidden bool
	Err       error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// LoadError means the agent metadata or history could not be fetched.
// The chat view is blocked; there is no retry.
type LoadError struct {
	AgentID int64
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load agent %d: %v", e.AgentID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ChannelError is delivered by the chat event channel. It is shown as a
// dismissible banner and never ends the session.
type ChannelError struct {
	Message string
}

func (e *ChannelError) Error() string { return e.Message }

// ValidationError reports an empty or malformed form field. No request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NeedsLogin reports whether err is solved by logging in again: no token,
// or a token the backend rejected. Permission failures are excluded.
func NeedsLogin(err error) bool {
	if errors.Is(err, ErrNotLoggedIn) {
		return true
	}
	var ae *AuthError
	return errors.As(err, &ae) && !ae.Forbidden
}

// IsAuthError reports whether err is, or wraps, an *AuthError or ErrNotLoggedIn.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae) || errors.Is(err, ErrNotLoggedIn)
}
