package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound          = errors.New("order not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInternal          = errors.New("internal error")
)

// ServiceErrorKind classifies failures of external collaborators.
type ServiceErrorKind string

const (
	KindTimeout    ServiceErrorKind = "timeout"
	KindService    ServiceErrorKind = "service"
	KindConversion ServiceErrorKind = "conversion"
)

// ServiceError wraps a collaborator failure with the operation that produced it.
// Coordinators retry these per policy; exhaustion surfaces as an order-level
// FAILED transition, never as an unhandled fault.
type ServiceError struct {
	Kind ServiceErrorKind
	Op   string
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func NewTimeoutError(op string, cause error) *ServiceError {
	return &ServiceError{Kind: KindTimeout, Op: op, Err: cause}
}

func NewServiceError(op string, cause error) *ServiceError {
	return &ServiceError{Kind: KindService, Op: op, Err: cause}
}

func NewConversionError(op string, cause error) *ServiceError {
	return &ServiceError{Kind: KindConversion, Op: op, Err: cause}
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
