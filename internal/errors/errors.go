// Package errors defines the service error taxonomy shared by every layer
// of the gateway. Controllers and middleware never invent HTTP statuses;
// they construct (or wrap into) a ServiceError and let the response writer
// map it.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodePreconditionFailed ErrorCode = "PRECONDITION_FAILED"
	CodeETagMissing        ErrorCode = "ETAG_MISSING"
	CodeForbiddenSQL       ErrorCode = "FORBIDDEN_SQL"
	CodeQueryFailed        ErrorCode = "QUERY_FAILED"
	CodeMicroservice       ErrorCode = "MICROSERVICE_ERROR"
	CodeConfiguration      ErrorCode = "CONFIGURATION_ERROR"
	CodeTimeout            ErrorCode = "TIMEOUT"
	CodeUnavailable        ErrorCode = "UNAVAILABLE"
	CodeRateLimited        ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// ServiceError carries an error code, a human-readable message, the HTTP
// status it should surface as, and optional structured details.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a structured detail and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetServiceError returns the ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// Validation reports bad or missing request input.
func Validation(message string) *ServiceError {
	return &ServiceError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Unauthorized reports a missing or unusable credential.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// InvalidToken reports a bearer token that failed verification.
func InvalidToken(err error) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: "Invalid token", HTTPStatus: http.StatusUnauthorized, Err: err}
}

// Forbidden reports an authenticated but disallowed request.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// NotFound reports an absent resource.
func NotFound(message string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// PreconditionFailed reports a stale version token on a conditional write.
// The caller should re-fetch the resource and retry the operation.
func PreconditionFailed(message string) *ServiceError {
	return &ServiceError{Code: CodePreconditionFailed, Message: message, HTTPStatus: http.StatusPreconditionFailed}
}

// ETagMissing reports an upstream GET response that carried no version
// header. This is an upstream contract violation, not a missing resource.
func ETagMissing(path string) *ServiceError {
	return (&ServiceError{
		Code:       CodeETagMissing,
		Message:    "Upstream response missing ETag header",
		HTTPStatus: http.StatusInternalServerError,
	}).WithDetails("path", path)
}

// ForbiddenSQL reports a statement rejected by the read-only allow-list.
func ForbiddenSQL(message string) *ServiceError {
	return &ServiceError{Code: CodeForbiddenSQL, Message: message, HTTPStatus: http.StatusBadRequest}
}

// QueryFailed wraps a warehouse execution failure.
func QueryFailed(err error) *ServiceError {
	return &ServiceError{Code: CodeQueryFailed, Message: "Query execution failed", HTTPStatus: http.StatusInternalServerError, Err: err}
}

// Microservice wraps an upstream HTTP failure, preserving its status.
func Microservice(status int, message string, err error) *ServiceError {
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	return &ServiceError{Code: CodeMicroservice, Message: message, HTTPStatus: status, Err: err}
}

// Configuration reports missing or invalid required configuration. These
// are fatal for the subsystem that raised them.
func Configuration(message string) *ServiceError {
	return &ServiceError{Code: CodeConfiguration, Message: message, HTTPStatus: http.StatusInternalServerError}
}

// Timeout classifies a deadline expiry so callers can decide whether the
// operation is safe to retry. The outcome of the timed-out call is unknown.
func Timeout(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeTimeout, Message: message, HTTPStatus: http.StatusGatewayTimeout, Err: err}
}

// Unavailable reports an upstream that could not be reached at all.
func Unavailable(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeUnavailable, Message: message, HTTPStatus: http.StatusServiceUnavailable, Err: err}
}

// RateLimitExceeded reports a throttled request.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return (&ServiceError{
		Code:       CodeRateLimited,
		Message:    "Rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}).WithDetails("limit", limit).WithDetails("window", window)
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}
