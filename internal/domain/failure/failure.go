// Package failure normalizes every error the core reports into one tagged
// shape: validation (with a field map), transport (with a message) or fatal.
package failure

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind tags an Error.
type Kind string

// Error kinds.
const (
	KindValidation Kind = "validation"
	KindTransport  Kind = "transport"
	KindFatal      Kind = "fatal"
)

// GenericMessage is shown when the backend did not provide a message.
const GenericMessage = "the request could not be completed"

// Error is the normalized error type.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string][]string
	// Status is the HTTP status of the backend response, zero when no response arrived.
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && len(e.Fields) > 0 {
		msg = formatFields(e.Fields)
	}
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = GenericMessage
	}
	return string(e.Kind) + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation wraps a sentinel cause into a validation error. Fields may be nil.
func Validation(cause error, fields map[string][]string) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: KindValidation, Message: msg, Fields: fields, Err: cause}
}

// Field builds a validation error for a single field.
func Field(cause error, field string, details ...string) *Error {
	if len(details) == 0 && cause != nil {
		details = []string{cause.Error()}
	}
	return Validation(cause, map[string][]string{field: details})
}

// Transport builds a transport error. message is the backend-provided text, if any.
func Transport(status int, message string, cause error) *Error {
	return &Error{Kind: KindTransport, Message: message, Status: status, Err: cause}
}

// Fatal builds an error that aborts the current operation with no recovery.
func Fatal(cause error) *Error {
	return &Error{Kind: KindFatal, Err: cause}
}

// KindOf returns the kind of err. Unclassified errors are fatal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindFatal
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return err != nil && KindOf(err) == KindValidation }

// FieldsOf returns the field map of a validation error, or nil.
func FieldsOf(err error) map[string][]string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Fields
	}
	return nil
}

// UserMessage returns the text to show a user: the backend message when one
// was provided, else a generic fallback.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if !errors.As(err, &fe) {
		return GenericMessage
	}
	switch {
	case fe.Message != "":
		return fe.Message
	case len(fe.Fields) > 0:
		return formatFields(fe.Fields)
	default:
		return GenericMessage
	}
}

func formatFields(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(fields[k], "; ")))
	}
	return strings.Join(parts, ", ")
}
