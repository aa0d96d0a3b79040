package ml

import (
	"errors"
	"fmt"
)

// MissingFieldError reports a required request field that was not sent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "Missing required field: " + e.Field
}

// InvalidInputError reports a field whose raw value could not be parsed.
type InvalidInputError struct {
	Field string
	Value string
	Err   error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid value %q for field %s", e.Value, e.Field)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

// ValidationError reports a well-typed value outside its allowed domain.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// EncodingError reports a value that has no column or code in the loaded assets.
type EncodingError struct {
	Field  string
	Value  string
	Column string
}

func (e *EncodingError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("unknown %s %q: model has no column %s", e.Field, e.Value, e.Column)
	}
	return fmt.Sprintf("unknown %s %q: no encoding in category table", e.Field, e.Value)
}

// ModelUnavailableError reports a model or encoding asset that could not be loaded.
type ModelUnavailableError struct {
	Path string
	Err  error
}

func (e *ModelUnavailableError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("model unavailable: %v", e.Err)
	}
	return fmt.Sprintf("model unavailable (%s): %v", e.Path, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	var (
		missing    *MissingFieldError
		invalid    *InvalidInputError
		validation *ValidationError
		encoding   *EncodingError
	)
	return errors.As(err, &missing) ||
		errors.As(err, &invalid) ||
		errors.As(err, &validation) ||
		errors.As(err, &encoding)
}
