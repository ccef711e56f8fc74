package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("bad input"), KindValidation},
		{"not found", NotFound("missing"), KindNotFound},
		{"conflict", Conflict("duplicate"), KindConflict},
		{"invariant", Invariant("last admin"), KindInvariant},
		{"forbidden", Forbidden("not yours"), KindForbidden},
		{"persistence", Persistence(errors.New("boom"), "query failed"), KindPersistence},
		{"untyped defaults to persistence", errors.New("plain"), KindPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOfWrapped(t *testing.T) {
	inner := NotFound("user %q not found", "alice")
	wrapped := fmt.Errorf("handling request: %w", inner)

	if !IsNotFound(wrapped) {
		t.Error("Expected wrapped error to still be a not-found error")
	}
	if KindOf(wrapped) != KindNotFound {
		t.Errorf("KindOf(wrapped) = %v, want KindNotFound", KindOf(wrapped))
	}
}

func TestErrorMessage(t *testing.T) {
	err := Validation("rating must be between %d and %d", 1, 5)
	want := "rating must be between 1 and 5"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestPersistenceUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Persistence(cause, "failed to load user")

	if !errors.Is(err, cause) {
		t.Error("Expected persistence error to unwrap to its cause")
	}
	want := "failed to load user: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
