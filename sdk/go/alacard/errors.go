// Package alacard provides a Go client for the Alacard notebook generation
// API, including an Observer that follows a generation task over the push
// channel and falls back to polling when push is unavailable.
package alacard

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents an error from the Alacard API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("alacard: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// ErrStopped is returned by Observer.Wait when observation was stopped
// before the task reached a terminal state.
var ErrStopped = errors.New("alacard: observation stopped")

// IsNotFound returns true if the error is a 404. Tasks expire from the
// server some time after they finish, so a 404 on a status poll can mean
// either an unknown or an expired task.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsBadRequest returns true if the error is a 400, typically a malformed
// recipe.
func IsBadRequest(err error) bool {
	return hasStatus(err, http.StatusBadRequest)
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	return hasStatus(err, http.StatusTooManyRequests)
}

// IsUnavailable returns true if the error is a 503.
func IsUnavailable(err error) bool {
	return hasStatus(err, http.StatusServiceUnavailable)
}

func hasStatus(err error, code int) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == code
	}
	return false
}
