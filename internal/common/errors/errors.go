// Package errors provides the typed error values shared by the governance
// service layers. Every error carries a stable code that handlers map onto
// transport status codes.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode classifies an error for callers and transports.
type ErrorCode string

const (
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrCodeAlreadyVoted  ErrorCode = "ALREADY_VOTED"
	ErrCodeNotEligible   ErrorCode = "NOT_ELIGIBLE"
	ErrCodeSessionClosed ErrorCode = "SESSION_CLOSED"
	ErrCodeRuleConflict  ErrorCode = "RULE_CONFLICT"
	ErrCodeInternal      ErrorCode = "INTERNAL"
)

// FieldError describes one failed field validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the service-wide error type.
type Error struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
	Err     error        `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "; %s: %s", f.Field, f.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// InvalidInput reports a single invalid field.
func InvalidInput(field, message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidInput,
		Message: "validation failed",
		Fields:  []FieldError{{Field: field, Message: message}},
	}
}

// Validation collects field errors so a request can be rejected with every
// problem at once. The zero value is ready to use.
type Validation struct {
	fields []FieldError
}

// Add records a field failure.
func (v *Validation) Add(field, message string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: message})
}

// Err returns nil when no field failed.
func (v *Validation) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &Error{
		Code:    ErrCodeInvalidInput,
		Message: "validation failed",
		Fields:  v.fields,
	}
}

// CodeOf extracts the code of err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}
