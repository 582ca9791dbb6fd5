package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/hpungsan/grimoire/internal/item"
)

func TestGrimoireError_Error(t *testing.T) {
	err := &GrimoireError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "item not found",
	}

	expected := "NOT_FOUND: item not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewValidationFailed(t *testing.T) {
	violations := []item.Violation{{Field: "description", Reason: "missing_required"}}
	err := NewValidationFailed(violations)

	if err.Code != ErrValidationFailed {
		t.Errorf("Code = %q, want %q", err.Code, ErrValidationFailed)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
	if len(err.Violations) != 1 || err.Violations[0] != violations[0] {
		t.Errorf("Violations = %v, want %v", err.Violations, violations)
	}
	list, ok := err.Details["violations"].([]map[string]string)
	if !ok || len(list) != 1 || list[0]["field"] != "description" {
		t.Errorf("Details[violations] = %v", err.Details["violations"])
	}
}

func TestNewDuplicateName(t *testing.T) {
	err := NewDuplicateName("foo")

	if err.Code != ErrDuplicateName {
		t.Errorf("Code = %q, want %q", err.Code, ErrDuplicateName)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
	if err.Details["name"] != "foo" {
		t.Errorf("Details[name] = %v, want %q", err.Details["name"], "foo")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("01HZX")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["id"] != "01HZX" {
		t.Errorf("Details[id] = %v, want %q", err.Details["id"], "01HZX")
	}
}

func TestNewVersionNotFound(t *testing.T) {
	err := NewVersionNotFound("01HZX", 7)

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Details["version"] != 7 {
		t.Errorf("Details[version] = %v, want 7", err.Details["version"])
	}
}

func TestNewVersionConflict(t *testing.T) {
	err := NewVersionConflict(1, 3)

	if err.Code != ErrVersionConflict {
		t.Errorf("Code = %q, want %q", err.Code, ErrVersionConflict)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
	if err.Details["expected"] != 1 || err.Details["actual"] != 3 {
		t.Errorf("Details = %v, want expected=1 actual=3", err.Details)
	}
}

func TestNewImmutableField(t *testing.T) {
	err := NewImmutableField("category")

	if err.Code != ErrImmutableField {
		t.Errorf("Code = %q, want %q", err.Code, ErrImmutableField)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("patch is empty")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Message != "patch is empty" {
		t.Errorf("Message = %q, want %q", err.Message, "patch is empty")
	}
}

func TestNewStorageFailure(t *testing.T) {
	cause := fmt.Errorf("disk I/O error")
	err := NewStorageFailure(cause)

	if err.Code != ErrStorageFailure {
		t.Errorf("Code = %q, want %q", err.Code, ErrStorageFailure)
	}
	if err.Status != 500 {
		t.Errorf("Status = %d, want 500", err.Status)
	}
	// Message should be generic (not leak storage details)
	if err.Message == cause.Error() {
		t.Error("Message leaks the cause")
	}
	if !stderrors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
	if !err.Retryable() {
		t.Error("storage failures should be retryable")
	}
}

func TestRetryable_OnlyStorage(t *testing.T) {
	for _, err := range []*GrimoireError{
		NewNotFound("x"),
		NewVersionConflict(1, 2),
		NewDuplicateName("x"),
		NewIndexDesync("x"),
	} {
		if err.Retryable() {
			t.Errorf("%s should not be retryable", err.Code)
		}
	}
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		err := NewNotFound("test")
		if !Is(err, ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		err := NewNotFound("test")
		if Is(err, ErrVersionConflict) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("non-GrimoireError", func(t *testing.T) {
		err := fmt.Errorf("plain error")
		if Is(err, ErrNotFound) {
			t.Error("Is() = true, want false for non-GrimoireError")
		}
	})

	t.Run("wrapped GrimoireError", func(t *testing.T) {
		inner := NewNotFound("test")
		wrapped := fmt.Errorf("restore: %w", inner)
		if !Is(wrapped, ErrNotFound) {
			t.Error("Is() = false, want true for wrapped GrimoireError")
		}
		if _, ok := As(wrapped); !ok {
			t.Error("As() = false, want true for wrapped GrimoireError")
		}
	})
}
