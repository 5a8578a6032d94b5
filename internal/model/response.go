package model

import "time"

// SuccessResponse is the standard envelope for successful gateway responses.
type SuccessResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorResponse is the standard envelope for error responses. Kind is a
// stable machine-readable classifier; Message is human text. Internal
// detail never appears here.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Error kinds used in ErrorResponse.Error.
const (
	ErrKindAuth       = "authentication_error"
	ErrKindNotReady   = "connection_not_ready"
	ErrKindRateLimit  = "rate_limit_exceeded"
	ErrKindValidation = "validation_error"
	ErrKindNotFound   = "not_found"
	ErrKindInternal   = "internal_error"
)

// NewSuccess builds a success envelope stamped with the current time.
func NewSuccess(message string, data interface{}) SuccessResponse {
	return SuccessResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// NewError builds an error envelope.
func NewError(kind, message string) ErrorResponse {
	return ErrorResponse{Success: false, Error: kind, Message: message}
}
