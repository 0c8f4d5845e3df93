// Package errors classifies failures for callers that must react to them:
// bad input, missing entities, and everything else.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the category of an AppError.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeInternal   ErrorType = "INTERNAL"
)

// AppError is a categorised error with a message safe to show clients.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidation reports input the caller must fix. err may be nil.
func NewValidation(message string, err error) error {
	return &AppError{Type: ErrorTypeValidation, Message: message, Err: err}
}

// NewNotFound reports a required entity that does not exist.
func NewNotFound(message string) error {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// Wrap adds context to err. Classified errors keep their type; anything else
// becomes internal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{Type: appErr.Type, Message: message + ": " + appErr.Message, Err: appErr.Err}
	}
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// TypeOf returns the category of err. Unclassified errors are internal.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return err != nil && TypeOf(err) == ErrorTypeValidation }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return err != nil && TypeOf(err) == ErrorTypeNotFound }

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
