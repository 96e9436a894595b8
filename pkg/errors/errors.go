// Package errors defines the typed error every layer returns and the HTTP
// contract attached to each code.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeInsufficient  Code = "INSUFFICIENT_FUNDS"
	CodeOutOfStock    Code = "OUT_OF_STOCK"
	CodeProcessed     Code = "ALREADY_PROCESSED"
	CodePending       Code = "PAYMENT_PENDING"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata is the public contract of a code. CallerMessage means the error's
// own message is safe to show; otherwise PublicMessage replaces it.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	CallerMessage  bool
}

const (
	retryable = 1 << iota
	withDetails
	callerMessage
)

func meta(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&withDetails != 0,
		CallerMessage:  flags&callerMessage != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", withDetails|callerMessage),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", callerMessage),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", callerMessage),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", callerMessage),
	CodeConflict:      meta(http.StatusConflict, "your action cannot proceed", withDetails|callerMessage),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails|callerMessage),
	CodeInsufficient:  meta(http.StatusConflict, "insufficient wallet balance", withDetails|callerMessage),
	CodeOutOfStock:    meta(http.StatusConflict, "insufficient stock", withDetails|callerMessage),
	CodeProcessed:     meta(http.StatusConflict, "already processed", withDetails|callerMessage),
	CodePending:       meta(http.StatusConflict, "payment is still in progress", retryable|withDetails|callerMessage),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", withDetails|callerMessage),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", callerMessage),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency: meta(http.StatusBadGateway,
		"we could not reach a payment partner, your funds are safe and will be refunded", retryable|withDetails),
}

// MetadataFor falls back to the internal contract for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails mutates and returns e so it can be chained off New.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsConflict reports whether the request was well formed but current state
// prevents it.
func IsConflict(code Code) bool {
	switch code {
	case CodeConflict, CodeStateConflict, CodeInsufficient, CodeOutOfStock, CodeProcessed:
		return true
	}
	return false
}

// Is reports whether the outermost typed error in err carries code.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// CodeOf returns the typed code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
