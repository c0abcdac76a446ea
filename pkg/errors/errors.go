package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the single error type surfaced by the key store, the signed
// transport and the wallet tools. Code classifies the failure; StatusCode and
// Body are only populated for remote errors.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"status,omitempty"`
	Body       string `json:"body,omitempty"`

	cause error
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *AppError) Unwrap() error {
	return e.cause
}

// Error codes
const (
	ErrCodeConfiguration   = "configuration_error"
	ErrCodeNotFound        = "not_found"
	ErrCodeFormat          = "format_error"
	ErrCodeCrypto          = "crypto_error"
	ErrCodeRemote          = "remote_error"
	ErrCodeDecode          = "decode_error"
	ErrCodeTransport       = "transport_error"
	ErrCodeInvalidArgument = "invalid_argument"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeInternalError   = "internal_error"
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewWithDetail creates a new AppError with additional detail
func NewWithDetail(code, message, detail string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Detail:  detail,
	}
}

// Wrap creates a new AppError that wraps cause. The cause's text becomes the detail.
func Wrap(code, message string, cause error) *AppError {
	e := &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// Configuration reports a missing or unresolvable setting.
func Configuration(detail string) *AppError {
	return NewWithDetail(ErrCodeConfiguration, "Invalid configuration", detail)
}

// CredentialNotFound reports a credential path that does not exist.
func CredentialNotFound(path string, cause error) *AppError {
	e := Wrap(ErrCodeNotFound, "Credential file not found", cause)
	e.Detail = fmt.Sprintf("path: %s", path)
	return e
}

// Format reports a credential file that is not usable.
func Format(detail string, cause error) *AppError {
	e := Wrap(ErrCodeFormat, "Malformed credential file", cause)
	if cause == nil || detail != "" {
		e.Detail = detail
	}
	return e
}

// Crypto reports a key or signing failure.
func Crypto(detail string, cause error) *AppError {
	e := Wrap(ErrCodeCrypto, "Signing failed", cause)
	if detail != "" {
		e.Detail = detail
	}
	return e
}

// Remote reports a non-2xx response. The body is kept verbatim.
func Remote(statusCode int, body string) *AppError {
	return &AppError{
		Code:       ErrCodeRemote,
		Message:    "Platform request failed",
		Detail:     fmt.Sprintf("status %d %s", statusCode, http.StatusText(statusCode)),
		StatusCode: statusCode,
		Body:       body,
	}
}

// ResponseTooLarge reports a response body above limit bytes. The body is
// not kept, so remote errors of that size lose their payload but keep the status.
func ResponseTooLarge(statusCode int, limit int64) *AppError {
	return &AppError{
		Code:       ErrCodeDecode,
		Message:    "Platform response too large",
		Detail:     fmt.Sprintf("status %d, body exceeds %d bytes", statusCode, limit),
		StatusCode: statusCode,
	}
}

// Decode reports a 2xx response whose body does not match the expected schema.
func Decode(cause error) *AppError {
	return Wrap(ErrCodeDecode, "Malformed platform response", cause)
}

// Transport reports a request that failed before a status was received.
func Transport(cause error) *AppError {
	return Wrap(ErrCodeTransport, "Platform unreachable", cause)
}

// InvalidArgument reports a rejected tool parameter.
func InvalidArgument(param string, cause error) *AppError {
	e := Wrap(ErrCodeInvalidArgument, "Invalid parameter", cause)
	if cause != nil {
		e.Detail = fmt.Sprintf("%s: %s", param, cause.Error())
	} else {
		e.Detail = param
	}
	return e
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}
