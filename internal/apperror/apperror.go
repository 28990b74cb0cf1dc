// Package apperror carries the error shape shared by all portal services.
// Services attach a dotted operation code, an HTTP-mappable kind and the
// German user-facing message; handlers translate the kind to a status code.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a service error for HTTP mapping.
type Kind int

const (
	// KindInvalid maps to 400 (validation or business-rule violation).
	KindInvalid Kind = iota
	// KindUnauthorized maps to 401.
	KindUnauthorized
	// KindForbidden maps to 403.
	KindForbidden
	// KindNotFound maps to 404.
	KindNotFound
	// KindConflict maps to 409 (state conflicts, stale versions).
	KindConflict
	// KindUnavailable maps to 503.
	KindUnavailable
	// KindInternal maps to 500.
	KindInternal
)

// ServiceError is the error type returned by portal services.
type ServiceError struct {
	kind    Kind
	code    string
	message string
	err     error
}

// New constructs a ServiceError. The code is a dotted operation code such as
// "faq.delete.not_archived"; the message is the German user-facing text.
func New(kind Kind, code, message string, cause error) *ServiceError {
	return &ServiceError{kind: kind, code: code, message: message, err: cause}
}

// Internal wraps an unexpected failure under the given operation code.
func Internal(code string, cause error) *ServiceError {
	return New(KindInternal, code, "Ein unerwarteter Fehler ist aufgetreten.", cause)
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

// Kind returns the HTTP-mappable classification.
func (e *ServiceError) Kind() Kind {
	return e.kind
}

// Message returns the German user-facing message.
func (e *ServiceError) Message() string {
	return e.message
}

// AsServiceError unwraps err into a ServiceError when possible.
func AsServiceError(err error) (*ServiceError, bool) {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr, true
	}
	return nil, false
}
