// Package http provides the JSON API over the donation manager and the
// activity feed.
//
// This file implements the builder for JSON responses and the mapping of
// domain errors to status codes.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"donations/internal/core"
	"donations/internal/ledger"
)

// Error codes returned in the "error" field of error responses
const (
	CodeInvalidAmount    = "invalid_amount"
	CodeInvalidName      = "invalid_name"
	CodeInvalidRequest   = "invalid_request"
	CodeStoreUnavailable = "store_unavailable"
	CodeStoreRead        = "store_read_failed"
	CodeRateLimited      = "rate_limited"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeNotReady         = "not_ready"
	CodeInternal         = "internal_error"
)

// ErrorBody is the payload of every error response
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	data       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.data != nil {
		_ = json.NewEncoder(w).Encode(b.data)
	}
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Data(ErrorBody{Error: code, Message: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(code, message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, code, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, CodeNotFound, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
}

// TooManyRequestsError creates a 429 Too Many Requests error response.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, please try again later")
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, CodeInternal, message)
}

// DomainError maps a manager or ledger error to its response. Caller
// faults are 400, a failed ledger write is 503, anything else is 500.
func DomainError(err error) *JSONResponseBuilder {
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return BadRequestError(CodeInvalidAmount, "amount must be a non-negative decimal number")
	case errors.Is(err, core.ErrInvalidName):
		return BadRequestError(CodeInvalidName, "donor name may not contain commas or line breaks")
	case errors.Is(err, ledger.ErrStoreWrite):
		return ErrorResponse(http.StatusServiceUnavailable, CodeStoreUnavailable, "the ledger could not be written, nothing was recorded")
	case errors.Is(err, ledger.ErrStoreRead):
		return ErrorResponse(http.StatusInternalServerError, CodeStoreRead, "the ledger could not be read")
	default:
		return InternalServerError("internal server error")
	}
}
