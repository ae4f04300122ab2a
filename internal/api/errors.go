package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrAborted is returned when a request was cancelled by its caller.
// Aborted requests are not failures and are never shown to the user.
var ErrAborted = errors.New("request aborted")

// AuthError indicates the session credential was rejected (401).
type AuthError struct {
	Method  string
	Path    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (401) on %s %s: %s", e.Method, e.Path, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// StatusError is a non-2xx response other than 401. Message carries the
// server's {"message": ...} body when present.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d on %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
}

// IsNotFound reports whether err is a 404 from the server, typically a
// stale reference to an entity already deleted.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// IsAborted reports whether err stems from caller cancellation.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}

// Message returns a short user-facing description of err.
func Message(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message
	}
	if IsAuthError(err) {
		return "session expired, please sign in again"
	}
	return err.Error()
}
