// internal/status/status_test.go
package status

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type codedErr struct{ code uint16 }

func (e codedErr) Error() string { return fmt.Sprintf("coded %d", e.code) }
func (e codedErr) Code() uint16  { return e.code }

func TestErrorCode(t *testing.T) {
	if got := ErrorCode(nil); got != 0 {
		t.Fatalf("nil: got=%d want=0", got)
	}
	if got := ErrorCode(errors.New("plain")); got != 1 {
		t.Fatalf("plain: got=%d want=1", got)
	}
	wrapped := fmt.Errorf("read: %w", codedErr{code: 2})
	if got := ErrorCode(wrapped); got != 2 {
		t.Fatalf("wrapped: got=%d want=2", got)
	}
	if got := ErrorCode(codedErr{code: 0}); got != 1 {
		t.Fatalf("zero code: got=%d want=1", got)
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		Disconnected: "disconnected",
		Connecting:   "connecting",
		Connected:    "connected",
		Failed:       "failed",
		State(42):    "unknown",
	}
	for s, w := range want {
		if s.String() != w {
			t.Fatalf("state %d: got=%q want=%q", s, s.String(), w)
		}
	}
}

func TestSecondsInErrorResetOnRecovery(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var s SourceStatus

	s.MarkError(t0, HealthError, errors.New("timeout"))
	s.MarkError(t0.Add(2*time.Second), HealthError, errors.New("timeout"))

	if got := s.SecondsInError(t0.Add(3 * time.Second)); got != 3 {
		t.Fatalf("seconds in error: got=%d want=3", got)
	}
	if s.ConsecutiveErrors != 2 {
		t.Fatalf("consecutive: got=%d want=2", s.ConsecutiveErrors)
	}

	s.MarkOK(t0.Add(4 * time.Second))
	if got := s.SecondsInError(t0.Add(10 * time.Second)); got != 0 {
		t.Fatalf("seconds in error not reset: got=%d", got)
	}
	if s.ConsecutiveErrors != 0 || s.LastErrorCode != 0 {
		t.Fatalf("status not cleared: %+v", s)
	}
}

func TestSecondsInErrorSaturates(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var s SourceStatus
	s.MarkError(t0, HealthFailed, errors.New("gone"))

	if got := s.SecondsInError(t0.Add(48 * time.Hour)); got != 65535 {
		t.Fatalf("got=%d want=65535", got)
	}
}
