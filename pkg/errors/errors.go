package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeServerError  ErrorType = "server_error"
	ErrorTypeEmptyBody    ErrorType = "empty_body"
	ErrorTypeSizeMismatch ErrorType = "size_mismatch"
	ErrorTypeAuth         ErrorType = "auth"
	ErrorTypeParsing      ErrorType = "parsing"
	ErrorTypeAPI          ErrorType = "api"
	ErrorTypeFatal        ErrorType = "fatal"
)

// Error represents a request or API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without a cause
func New(t ErrorType, code int, msg string) *Error {
	return &Error{Type: t, Code: code, Message: msg}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, code int, msg string, err error) *Error {
	return &Error{Type: t, Code: code, Message: msg, Err: err}
}

// Fatal builds a fatal error. Fatal errors are never retried by any caller.
func Fatal(msg string, err error) *Error {
	return &Error{Type: ErrorTypeFatal, Message: msg, Err: err}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeServerError,
		ErrorTypeEmptyBody, ErrorTypeSizeMismatch:
		return true
	default:
		return false
	}
}

// TypeOf returns the type of the outermost typed error in the chain, or "".
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsAuth reports whether err is an authorization failure
func IsAuth(err error) bool {
	return TypeOf(err) == ErrorTypeAuth
}

// IsFatal reports whether err is fatal
func IsFatal(err error) bool {
	return TypeOf(err) == ErrorTypeFatal
}

// FromStatusCode classifies a non-200 HTTP status
func FromStatusCode(statusCode int) ErrorType {
	switch {
	case statusCode == 401:
		return ErrorTypeAuth
	case statusCode == 429:
		return ErrorTypeRateLimit
	default:
		return ErrorTypeServerError
	}
}
