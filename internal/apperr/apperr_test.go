package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(KindValidation, "duration out of range")
	if KindOf(err) != KindValidation {
		t.Errorf("KindOf = %d, want KindValidation", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("plain error should map to KindUnknown")
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	inner := New(KindNotFound, "activity not found")
	outer := fmt.Errorf("deleting: %w", inner)
	if KindOf(outer) != KindNotFound {
		t.Error("kind should survive wrapping with %w")
	}
}

func TestMessageOf_HidesInternalDetail(t *testing.T) {
	err := Wrap(KindProvider, "provider request failed", errors.New("dial tcp: connection refused"))
	if MessageOf(err) != "provider request failed" {
		t.Errorf("MessageOf = %q, want safe message", MessageOf(err))
	}
	if MessageOf(errors.New("pq: syntax error")) != "internal server error" {
		t.Error("plain errors must surface a generic message")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Wrap(KindUnknown, "wrapped", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}
