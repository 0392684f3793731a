package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies gateway failures.
type ErrorCode string

const (
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeForbidden        ErrorCode = "FORBIDDEN"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	CodeFilterFailed     ErrorCode = "FILTER_FAILED"
	CodeLLMStreamFailed  ErrorCode = "LLM_STREAM_FAILED"
	CodeAuditFailed      ErrorCode = "AUDIT_FAILED"
	CodeOperatorDelivery ErrorCode = "OPERATOR_DELIVERY_FAILED"
	CodeOperatorUnbound  ErrorCode = "OPERATOR_UNBOUND"
)

// AppError carries a code, a human-readable message and an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewInvalidInputError creates a validation error.
func NewInvalidInputError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: message,
	}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
	}
}

// NewForbiddenError creates a forbidden error.
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
	}
}

// NewStoreUnavailableError marks a vault write or read failure. A turn that
// hits this must abort because the original PII could not be protected.
func NewStoreUnavailableError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeStoreUnavailable,
		Message: message,
		Err:     cause,
	}
}

// NewFilterFailedError marks a de-identification failure before the LLM call.
func NewFilterFailedError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeFilterFailed,
		Message: message,
		Err:     cause,
	}
}

// NewLLMStreamFailedError marks a model stream that broke mid-turn.
func NewLLMStreamFailedError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeLLMStreamFailed,
		Message: message,
		Err:     cause,
	}
}

// NewAuditFailedError marks a history write failure. Callers log and continue.
func NewAuditFailedError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeAuditFailed,
		Message: message,
		Err:     cause,
	}
}

// NewOperatorDeliveryError marks a failed send into the operator channel.
func NewOperatorDeliveryError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeOperatorDelivery,
		Message: message,
		Err:     cause,
	}
}

// NewOperatorUnboundError marks a human-mode turn with no operator attached.
func NewOperatorUnboundError(message string) *AppError {
	return &AppError{
		Code:    CodeOperatorUnbound,
		Message: message,
	}
}

func hasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsInvalidInput reports whether err is a validation error.
func IsInvalidInput(err error) bool {
	return hasCode(err, CodeInvalidInput)
}

// IsStoreUnavailable reports whether err is a vault availability error.
func IsStoreUnavailable(err error) bool {
	return hasCode(err, CodeStoreUnavailable)
}

// IsFilterFailed reports whether err is a de-identification error.
func IsFilterFailed(err error) bool {
	return hasCode(err, CodeFilterFailed)
}

// IsLLMStreamFailed reports whether err is a broken model stream.
func IsLLMStreamFailed(err error) bool {
	return hasCode(err, CodeLLMStreamFailed)
}

// IsOperatorUnbound reports whether err marks a missing operator binding.
func IsOperatorUnbound(err error) bool {
	return hasCode(err, CodeOperatorUnbound)
}
