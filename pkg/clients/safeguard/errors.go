package safeguard

import (
	"errors"
	"fmt"
)

// Error represents an error returned by the appliance API
type Error struct {
	StatusCode int    `json:"status_code"`
	Code       int    `json:"code,omitempty"`
	Message    string `json:"message"`
	Body       string `json:"body,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("safeguard: %s (status: %d, request_id: %s)", e.Message, e.StatusCode, e.RequestID)
	}

	return fmt.Sprintf("safeguard: %s (status: %d)", e.Message, e.StatusCode)
}

// IsRetryable returns true if the error might be resolved by retrying
func (e *Error) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

func (e *Error) IsServerError() bool {
	return e.StatusCode >= 500
}

// IsAuthError returns true if the appliance rejected the credentials
func (e *Error) IsAuthError() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

func (e *Error) IsNotFound() bool {
	return e.StatusCode == 404
}

// AsError unwraps err into an appliance API error
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	return nil, false
}

// IsNotFoundError reports whether err is an appliance 404
func IsNotFoundError(err error) bool {
	if apiErr, ok := AsError(err); ok {
		return apiErr.IsNotFound()
	}

	return false
}
