package derrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New(CodeNotFound, "rule not found")); got != CodeNotFound {
		t.Fatalf("expected %s, got %s", CodeNotFound, got)
	}
	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Fatalf("uncoded errors should report %s, got %s", CodeInternal, got)
	}
	// The outermost code wins when services re-wrap.
	inner := New(CodeUnavailable, "scorer unreachable")
	outer := Wrap(inner, CodeInternal, "evaluation failed")
	if got := CodeOf(outer); got != CodeInternal {
		t.Fatalf("expected outermost code %s, got %s", CodeInternal, got)
	}
}

func TestHasCodeWalksChain(t *testing.T) {
	inner := New(CodeConflict, "version already published")
	wrapped := fmt.Errorf("publish: %w", Wrap(inner, CodeInternal, "store write failed"))

	if !HasCode(wrapped, CodeConflict) {
		t.Fatalf("expected chain to carry %s", CodeConflict)
	}
	if HasCode(wrapped, CodeNotFound) {
		t.Fatalf("chain should not carry %s", CodeNotFound)
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, CodeInternal, "ignored"); err != nil {
		t.Fatalf("wrapping nil should return nil, got %v", err)
	}
}

func TestMessageHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:5432: connection refused")
	err := Wrap(cause, CodeUnavailable, "rule store unreachable")

	if got := Message(err); got != "rule store unreachable" {
		t.Fatalf("expected caller-safe message, got %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause should remain in the chain")
	}
}
