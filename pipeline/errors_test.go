package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestErrorIsMatchesSentinel verifies errors.Is matches a *Error against its
// exported Kind sentinel.
func TestErrorIsMatchesSentinel(t *testing.T) {
	err := newErr(Cancelled, "input", 3, "break waiting")
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("expected errors.Is(err, ErrCancelled) to be true")
	}
	if errors.Is(err, ErrNoData) {
		t.Errorf("expected errors.Is(err, ErrNoData) to be false for a Cancelled error")
	}
}

// TestWrapErrPreservesCauseForUnwrap verifies the wrapped cause is reachable
// through errors.Unwrap/errors.Is chains.
func TestWrapErrPreservesCauseForUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying failure")
	err := wrapErr(DeviceError, "gpu-op", 1, cause, "device op failed")

	if !errors.Is(err, cause) {
		t.Errorf("expected the wrapped cause to be reachable via errors.Is")
	}
	if !errors.Is(err, ErrDeviceError) {
		t.Errorf("expected the error's own Kind sentinel to still match")
	}
}

// TestErrorMessageIncludesOpAndIteration verifies the formatted message
// surfaces operator name and iteration when present.
func TestErrorMessageIncludesOpAndIteration(t *testing.T) {
	err := newErr(OperatorFailure, "resize", 7, "bad shape")
	msg := err.Error()
	if !strings.Contains(msg, "resize") || !strings.Contains(msg, "7") {
		t.Errorf("expected error message to mention op and iteration, got %q", msg)
	}
}
