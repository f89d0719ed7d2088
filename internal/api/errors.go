// errors.go - Structured errors for backend API responses
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError represents a non-2xx response from the analysis backend.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%d): %s: %s", e.Code, e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewStatusError creates an error for an arbitrary status code.
func NewStatusError(status int, message string) *APIError {
	return &APIError{
		Status:  status,
		Code:    codeForStatus(status),
		Message: message,
	}
}

// errorBody covers the shapes backends commonly use for error payloads:
// {"code","message","details"} and FastAPI's {"detail"}.
type errorBody struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details string          `json:"details"`
	Detail  json.RawMessage `json:"detail"`
	Error   string          `json:"error"`
}

// decodeError builds an APIError from a non-2xx response body.
func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{
		Status: status,
		Code:   codeForStatus(status),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Code != "" {
			apiErr.Code = eb.Code
		}
		apiErr.Details = eb.Details
		switch {
		case eb.Message != "":
			apiErr.Message = eb.Message
		case len(eb.Detail) > 0:
			var s string
			if json.Unmarshal(eb.Detail, &s) == nil {
				apiErr.Message = s
			} else {
				apiErr.Message = string(eb.Detail)
			}
		case eb.Error != "":
			apiErr.Message = eb.Error
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = truncate(strings.TrimSpace(string(body)), 500)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusUnprocessableEntity:
		return "VALIDATION_ERROR"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	}
	if status >= 500 {
		return "INTERNAL_ERROR"
	}
	return "HTTP_ERROR"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
