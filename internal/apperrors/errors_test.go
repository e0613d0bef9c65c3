package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesOnKind(t *testing.T) {
	err := NotFound("pending client", 5)
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFound should match ErrNotFound")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("NotFound should not match ErrConflict")
	}

	wrapped := fmt.Errorf("approve: %w", InvalidState("status is %s", "draft"))
	if !errors.Is(wrapped, ErrInvalidState) {
		t.Error("wrapped InvalidState should still match")
	}
	if KindOf(wrapped) != KindInvalidState {
		t.Errorf("Expected invalid_state, got %s", KindOf(wrapped))
	}
}

func TestKindOfForeignError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("foreign errors should map to internal")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Validation("email", "must be a valid e-mail")
	if err.Error() != "email: must be a valid e-mail" {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	cause := errors.New("disk full")
	w := Wrap(cause, KindInternal, "save tier")
	if !errors.Is(w, cause) {
		t.Error("Wrap should keep the cause reachable")
	}
	if w.Error() != "save tier: disk full" {
		t.Errorf("Unexpected message: %s", w.Error())
	}
}
