package core

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldError is a shortcut for a ValidationError on a single field.
func NewFieldError(field, msg string) error {
	return &ValidationError{Err: errors.New(msg), Fields: []FieldError{{Field: field, Error: msg}}}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// TooManyRequestsError is returned when a rate limit is hit.
type TooManyRequestsError struct {
	Message    string
	RetryAfter time.Duration
}

func NewTooManyRequestsError(msg string, retryAfter time.Duration) error {
	return &TooManyRequestsError{Message: msg, RetryAfter: retryAfter}
}

func (err TooManyRequestsError) Error() string {
	if err.RetryAfter > 0 {
		return fmt.Sprintf("%s, retry in %s", err.Message, err.RetryAfter.Round(time.Second))
	}
	return err.Message
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
