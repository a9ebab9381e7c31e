package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     Kind
	}{
		{"validation", Validationf("title too long: %d", 300), ErrValidation, KindValidation},
		{"conflict", Conflictf("sphere %d already has a lead", 1), ErrConflict, KindConflict},
		{"authorization", Unauthorizedf("requires %s", "Ban"), ErrAuthorization, KindAuthorization},
		{"not found", NotFoundf("post %d", 9), ErrNotFound, KindNotFound},
		{"wrapped", fmt.Errorf("cast vote: %w", Conflictf("race")), ErrConflict, KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v", got, tt.kind)
			}
			for _, other := range []error{ErrValidation, ErrConflict, ErrAuthorization, ErrNotFound} {
				if other != tt.sentinel && errors.Is(tt.err, other) {
					t.Errorf("%v unexpectedly matches %v", tt.err, other)
				}
			}
		})
	}
}

func TestKindOf_Internal(t *testing.T) {
	if got := KindOf(errors.New("connection refused")); got != KindInternal {
		t.Errorf("KindOf(plain) = %v, want internal", got)
	}
	if KindOf(nil) != KindInternal {
		t.Error("KindOf(nil) should be internal")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("duplicate key value violates unique constraint")
	err := Wrap(KindConflict, cause, "insert vote")
	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable")
	}
	if !IsConflict(err) || IsNotFound(err) || IsValidation(err) || IsAuthorization(err) {
		t.Errorf("unexpected kind helpers for %v", err)
	}
}
