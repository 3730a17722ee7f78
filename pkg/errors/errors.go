package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Code classifies a client-side failure.
type Code int

const (
	CodeValidation Code = iota + 1000
	CodeHTTP
	CodeNetwork
	CodeShape
	CodeSessionExpired
)

// GenericMessage is shown when the server supplied no usable message.
const GenericMessage = "something went wrong"

// Error is the single error type crossing package boundaries in the client.
type Error struct {
	Code    Code              `json:"code"`
	Status  int               `json:"status,omitempty"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Code == CodeValidation && len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for field, msg := range e.Fields {
			parts = append(parts, fmt.Sprintf("%s %s", field, msg))
		}
		sort.Strings(parts)
		return "validation failed: " + strings.Join(parts, "; ")
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidation builds a field-level validation error. It must be surfaced
// at the form boundary and never reach the network layer.
func NewValidation(fields map[string]string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: "validation failed",
		Fields:  fields,
	}
}

// NewNetwork wraps a transport failure with no HTTP response.
func NewNetwork(err error) *Error {
	return &Error{
		Code:    CodeNetwork,
		Message: "network error",
		Err:     err,
	}
}

// NewShape reports a response that matched none of the tolerated shapes.
func NewShape(resource string, err error) *Error {
	return &Error{
		Code:    CodeShape,
		Message: fmt.Sprintf("unexpected %s response shape", resource),
		Err:     err,
	}
}

// NewHTTP reports a non-auth server rejection.
func NewHTTP(status int, message string) *Error {
	if message == "" {
		message = GenericMessage
	}
	return &Error{
		Code:    CodeHTTP,
		Status:  status,
		Message: message,
	}
}

// FromStatus maps an HTTP error status to the client taxonomy. 401 and 403
// are session expiry; everything else is a plain HTTP error.
func FromStatus(status int, message string) *Error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if message == "" {
			message = "session expired"
		}
		return &Error{
			Code:    CodeSessionExpired,
			Status:  status,
			Message: message,
		}
	}
	return NewHTTP(status, message)
}

func is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func IsValidation(err error) bool     { return is(err, CodeValidation) }
func IsNetwork(err error) bool        { return is(err, CodeNetwork) }
func IsShape(err error) bool          { return is(err, CodeShape) }
func IsSessionExpired(err error) bool { return is(err, CodeSessionExpired) }

// As extracts the client error, if err carries one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// Message returns the user-facing message for err: the server-supplied one
// when present, otherwise a generic fallback.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok && e.Message != "" {
		return e.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return GenericMessage
}
