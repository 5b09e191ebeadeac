package api

import (
	"errors"
	"fmt"
)

// ErrorBody is the structured error payload the backend attaches to non-2xx
// responses. PlanLimit and CurrentCount are only present on quota rejections.
type ErrorBody struct {
	Error        string `json:"error,omitempty"`
	Message      string `json:"message,omitempty"`
	PlanLimit    int    `json:"planLimit,omitempty"`
	CurrentCount int    `json:"currentCount,omitempty"`
}

// APIError is a server error response: a status code plus whatever structured
// detail the body carried. Transport failures (no response at all) are plain
// wrapped errors and never an *APIError, so callers can tell the two apart
// with errors.As.
type APIError struct {
	Status int
	Body   ErrorBody
}

func (e *APIError) Error() string {
	if msg := e.Body.text(); msg != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

func (b ErrorBody) text() string {
	if b.Error != "" {
		return b.Error
	}
	return b.Message
}

// UserMessage returns the server-provided message, or a generic fallback when
// the body carried none.
func (e *APIError) UserMessage() string {
	if msg := e.Body.text(); msg != "" {
		return msg
	}
	return "Request failed, please try again"
}

// IsQuota reports whether this is a plan-quota rejection: 403 with the
// planLimit/currentCount fields present. A bare 403 is a generic error.
func (e *APIError) IsQuota() bool {
	return e.Status == 403 && e.Body.PlanLimit > 0
}

// IsUnauthorized reports a 401, meaning the stored token is stale or revoked.
func (e *APIError) IsUnauthorized() bool {
	return e.Status == 401
}

// AsAPIError unwraps err into an *APIError, or nil for transport failures.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
