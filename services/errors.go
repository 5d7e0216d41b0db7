package services

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Controllers map them to HTTP status codes.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// AppError carries a user-facing message together with one of the sentinel kinds.
type AppError struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNotFound) and friends match on Kind.
func (e *AppError) Is(target error) bool {
	return e.Kind == target
}

// ValidationError reports bad input.
func ValidationError(op, format string, args ...any) error {
	return &AppError{Kind: ErrValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing (or soft-deleted) record.
func NotFoundError(op, format string, args ...any) error {
	return &AppError{Kind: ErrNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports a write that would duplicate an existing record.
func ConflictError(op, format string, args ...any) error {
	return &AppError{Kind: ErrConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

// wrapDB attaches an operation name to a storage error without assigning a kind.
func wrapDB(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// PublicMessage returns the message safe to show to API clients.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "Internal Server Error"
}
