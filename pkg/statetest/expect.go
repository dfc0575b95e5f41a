package statetest

import (
	"testing"
	"time"

	"github.com/optimist-go/optimist/pkg/state"
)

const (
	awaitTimeout = 2 * time.Second
	pollInterval = 5 * time.Millisecond
)

// ExpectData asserts the container's visible value.
//
// Example:
//
//	statetest.ExpectData(t, s, "hello")
func ExpectData[T comparable](tb testing.TB, s *state.State[T], want T) {
	tb.Helper()
	if got := s.Data(); got != want {
		tb.Errorf("Data() = %v, want %v", got, want)
	}
}

// ExpectBaseline asserts the container's last confirmed value.
func ExpectBaseline[T comparable](tb testing.TB, s *state.State[T], want T) {
	tb.Helper()
	if got := s.Baseline(); got != want {
		tb.Errorf("Baseline() = %v, want %v", got, want)
	}
}

// ExpectPhase asserts the container's lifecycle phase.
//
// Example:
//
//	statetest.ExpectPhase(t, s, state.PhaseFailed)
func ExpectPhase[T any](tb testing.TB, s *state.State[T], want state.Phase) {
	tb.Helper()
	if got := s.Phase(); got != want {
		tb.Errorf("Phase() = %v, want %v", got, want)
	}
}

// ExpectErr asserts the recorded commit error. Errors are recorded
// verbatim, so the assertion is on the exact message; an empty want
// asserts that no error is recorded.
//
// Example:
//
//	statetest.ExpectErr(t, s, "backend down")
func ExpectErr[T any](tb testing.TB, s *state.State[T], want string) {
	tb.Helper()
	got := s.Err()
	if want == "" {
		if got != nil {
			tb.Errorf("Err() = %v, want nil", got)
		}
		return
	}
	if got == nil {
		tb.Errorf("Err() = nil, want %q", want)
		return
	}
	if got.Error() != want {
		tb.Errorf("Err() = %q, want %q", got.Error(), want)
	}
}

// AwaitIdle blocks until the container is out of its optimistic window,
// failing the test after two seconds. The final phase is idle after a
// successful commit and failed after a failed one; assert on it
// separately.
//
// The wait observes the phase, so it is meaningful for the usual flow
// where an Update marked the state optimistic before the commit started.
// A commit issued without a prior Update never shows as pending and is
// not awaitable this way; use a blocking Commit or an OnCommit callback
// for that shape.
func AwaitIdle[T any](tb testing.TB, s *state.State[T]) {
	tb.Helper()
	deadline := time.Now().Add(awaitTimeout)
	for time.Now().Before(deadline) {
		if s.Phase() != state.PhasePending {
			return
		}
		time.Sleep(pollInterval)
	}
	tb.Fatalf("state still optimistic after %s", awaitTimeout)
}
