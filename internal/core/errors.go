// Package core provides the domain types and error taxonomy for costlens.
package core

import (
	"fmt"
	"net/http"
)

// ErrorType classifies a pipeline failure.
type ErrorType string

const (
	// ErrorTypeDateParse indicates a malformed period key. Callers skip the
	// affected record; a date-parse failure never aborts a merge.
	ErrorTypeDateParse ErrorType = "date_parse_error"
	// ErrorTypeSourceUnavailable indicates the external spend provider could
	// not deliver data. The pipeline degrades to savings-only output and the
	// report carries the availability flag.
	ErrorTypeSourceUnavailable ErrorType = "source_unavailable_error"
	// ErrorTypeStorage indicates a ledger storage failure (503)
	ErrorTypeStorage ErrorType = "storage_error"
	// ErrorTypeValidation indicates a client error (4xx)
	ErrorTypeValidation ErrorType = "validation_error"
	// ErrorTypeAuthentication indicates an authentication error (401)
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeInternal indicates an unexpected failure in a named stage (500)
	ErrorTypeInternal ErrorType = "internal_error"
)

// ReportError is the base error type for all costlens failures. A division
// with a zero denominator is not an error anywhere in the pipeline: it is an
// absent value, represented as a nil optional on the affected record.
type ReportError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	// Stage names the pipeline stage that failed (fetch, normalize, merge,
	// ledger, render), for unrecoverable conditions.
	Stage string `json:"stage,omitempty"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *ReportError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Stage, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *ReportError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *ReportError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeValidation, ErrorTypeDateParse:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeStorage:
		return http.StatusServiceUnavailable
	case ErrorTypeSourceUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to a JSON-compatible map
func (e *ReportError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewDateParseError reports a malformed period key. The caller must treat this
// as skip-this-record, not abort-the-run.
func NewDateParseError(key string, granularity Granularity, err error) *ReportError {
	return &ReportError{
		Type:    ErrorTypeDateParse,
		Message: fmt.Sprintf("malformed %s period key %q", granularity, key),
		Err:     err,
	}
}

// NewSourceUnavailableError reports that the external spend source could not
// be reached or produced unusable output.
func NewSourceUnavailableError(source string, err error) *ReportError {
	return &ReportError{
		Type:       ErrorTypeSourceUnavailable,
		Message:    fmt.Sprintf("spend source %q unavailable", source),
		StatusCode: http.StatusBadGateway,
		Stage:      "fetch",
		Err:        err,
	}
}

// NewStorageError reports a ledger storage failure in the named stage.
func NewStorageError(stage string, message string, err error) *ReportError {
	return &ReportError{
		Type:       ErrorTypeStorage,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Stage:      stage,
		Err:        err,
	}
}

// NewValidationError reports invalid caller input (400)
func NewValidationError(message string, err error) *ReportError {
	return &ReportError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewAuthenticationError reports a failed authentication attempt (401)
func NewAuthenticationError(message string) *ReportError {
	return &ReportError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewInternalError reports an unexpected failure in the named pipeline stage.
func NewInternalError(stage string, message string, err error) *ReportError {
	return &ReportError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Stage:      stage,
		Err:        err,
	}
}
