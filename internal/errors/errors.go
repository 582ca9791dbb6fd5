package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/hpungsan/grimoire/internal/item"
)

// ErrorCode represents a Grimoire error code.
type ErrorCode string

const (
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED" // 422
	ErrDuplicateName    ErrorCode = "DUPLICATE_NAME"    // 409
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrVersionConflict  ErrorCode = "VERSION_CONFLICT"  // 409
	ErrImmutableField   ErrorCode = "IMMUTABLE_FIELD"   // 400
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrStorageFailure   ErrorCode = "STORAGE_FAILURE"   // 500
	ErrIndexDesync      ErrorCode = "INDEX_DESYNC"      // 500
)

// GrimoireError represents a structured error with code, status, and details.
type GrimoireError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Violations is set for VALIDATION_FAILED only
	Violations []item.Violation

	// Cause is the underlying error, if any. It is never shown to callers.
	Cause error
}

// Error implements the error interface.
func (e *GrimoireError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *GrimoireError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failed operation is safe to retry as-is.
func (e *GrimoireError) Retryable() bool {
	return e.Code == ErrStorageFailure
}

// NewValidationFailed creates a 422 error listing every violation found.
func NewValidationFailed(violations []item.Violation) *GrimoireError {
	fields := make([]string, 0, len(violations))
	list := make([]map[string]string, 0, len(violations))
	for _, v := range violations {
		fields = append(fields, v.String())
		list = append(list, map[string]string{"field": v.Field, "reason": v.Reason})
	}
	return &GrimoireError{
		Code:       ErrValidationFailed,
		Status:     422,
		Message:    fmt.Sprintf("validation failed: %v", fields),
		Details:    map[string]any{"violations": list},
		Violations: violations,
	}
}

// NewDuplicateName creates a 409 error for name collisions.
func NewDuplicateName(name string) *GrimoireError {
	return &GrimoireError{
		Code:    ErrDuplicateName,
		Status:  409,
		Message: fmt.Sprintf("an item named %q already exists", name),
		Details: map[string]any{"name": name},
	}
}

// NewNotFound creates a 404 error for a missing item.
func NewNotFound(id string) *GrimoireError {
	return &GrimoireError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("item not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewVersionNotFound creates a 404 error for a missing history version.
func NewVersionNotFound(id string, version int) *GrimoireError {
	return &GrimoireError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("version %d of item %s not found", version, id),
		Details: map[string]any{"id": id, "version": version},
	}
}

// NewVersionConflict creates a 409 error when the caller's base version is stale.
func NewVersionConflict(expected, actual int) *GrimoireError {
	return &GrimoireError{
		Code:    ErrVersionConflict,
		Status:  409,
		Message: fmt.Sprintf("item changed since it was loaded (expected version %d, current %d); reload and retry", expected, actual),
		Details: map[string]any{"expected": expected, "actual": actual},
	}
}

// NewImmutableField creates a 400 error when a patch changes a fixed field.
func NewImmutableField(field string) *GrimoireError {
	return &GrimoireError{
		Code:    ErrImmutableField,
		Status:  400,
		Message: fmt.Sprintf("field %q cannot be changed after creation", field),
		Details: map[string]any{"field": field},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *GrimoireError {
	return &GrimoireError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewStorageFailure creates a 500 error wrapping a database failure.
// The cause is kept for logs; the message stays generic.
func NewStorageFailure(err error) *GrimoireError {
	return &GrimoireError{
		Code:    ErrStorageFailure,
		Status:  500,
		Message: "storage failure; the operation was not applied and may be retried",
		Cause:   err,
	}
}

// NewIndexDesync creates a 500 error for an index entry that disagrees with its item.
func NewIndexDesync(id string) *GrimoireError {
	return &GrimoireError{
		Code:    ErrIndexDesync,
		Status:  500,
		Message: fmt.Sprintf("search index out of sync for item %s", id),
		Details: map[string]any{"id": id},
	}
}

// As returns the GrimoireError in err's chain, if any.
func As(err error) (*GrimoireError, bool) {
	var gErr *GrimoireError
	if stderrors.As(err, &gErr) {
		return gErr, true
	}
	return nil, false
}

// Is checks if an error is a GrimoireError with the given code.
func Is(err error, code ErrorCode) bool {
	if gErr, ok := As(err); ok {
		return gErr.Code == code
	}
	return false
}
