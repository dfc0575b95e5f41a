package state

import (
	"context"
	"sync"

	"github.com/optimist-go/optimist/pkg/middleware"
)

// CommitOption configures a single commit.
type CommitOption[T, R any] func(*commitConfig[T, R])

type commitConfig[T, R any] struct {
	transform func(R, T) T
}

// Transform sets how a successful action result becomes the new confirmed
// value: final = fn(result, current visible data). Without a Transform the
// current data is confirmed unchanged, which is the usual pairing with an
// Update that already applied the intended value.
func Transform[T, R any](fn func(result R, current T) T) CommitOption[T, R] {
	return func(c *commitConfig[T, R]) {
		c.transform = fn
	}
}

// Commit runs the confirming action for a speculative change and reconciles
// the outcome. It is a package-level function because the action's result
// type R is independent of the container's T.
//
// On success the final value (see Transform) becomes both the visible data
// and the new baseline, the bound cache entry is updated, Optimistic and Err
// clear, the OnCommit callback fires, and Commit returns (result, true).
//
// On failure the error is recorded verbatim and never returned: Commit
// returns (zero, false) and the caller observes the failure via Err,
// Snapshot, or the OnCommitError callback. With revert enabled (the
// default) Data snaps back to the baseline and the cache entry is
// re-synchronized to it; with KeepOnError the optimistic value stays.
// Either way Optimistic is false once Commit returns.
//
// Commit blocks for the duration of the action; ctx is handed to the action
// for its own timeout handling. There is no cancellation of the commit
// itself. Overlapping commits resolve last-write-wins unless the State was
// built with Sequential.
func Commit[T, R any](s *State[T], ctx context.Context, action func(context.Context) (R, error), opts ...CommitOption[T, R]) (R, bool) {
	cfg := &commitConfig[T, R]{}
	for _, opt := range opts {
		opt(cfg)
	}

	wait, release := s.enterCommit()
	defer release()
	wait()

	result, err := action(ctx)
	if err != nil {
		s.applyFailure(err)
		var zero R
		return zero, false
	}

	s.applySuccess(func(current T) T {
		if cfg.transform != nil {
			return cfg.transform(result, current)
		}
		return current
	})
	return result, true
}

// GoCommit runs Commit on a new goroutine for callers that must not block,
// such as event handlers. The outcome is observable through the state and
// the commit callbacks; there is no completion handle. With Sequential, the
// commit's queue position is taken synchronously at call time, so GoCommit
// calls run in call order.
func GoCommit[T, R any](s *State[T], ctx context.Context, action func(context.Context) (R, error), opts ...CommitOption[T, R]) {
	cfg := &commitConfig[T, R]{}
	for _, opt := range opts {
		opt(cfg)
	}

	wait, release := s.enterCommit()

	go func() {
		defer release()
		wait()

		result, err := action(ctx)
		if err != nil {
			s.applyFailure(err)
			return
		}

		s.applySuccess(func(current T) T {
			if cfg.transform != nil {
				return cfg.transform(result, current)
			}
			return current
		})
	}()
}

// applySuccess confirms a commit: the finalized value becomes data and
// baseline, the cache entry follows, flags clear.
func (s *State[T]) applySuccess(finalize func(T) T) {
	s.apply(func() func() {
		final := finalize(s.snap.Get().Data)
		s.baseline = final
		s.snap.Replace(Snapshot[T]{Data: final})
		if s.entry != nil {
			s.entry.Set(final)
		}
		middleware.RecordCommit(true)
		if cb := s.onCommit; cb != nil {
			return func() { cb(final) }
		}
		return nil
	})
}

// applyFailure records a failed commit. The action's error is stored as-is
// so callers can match it with errors.Is or compare messages.
func (s *State[T]) applyFailure(actionErr error) {
	s.apply(func() func() {
		if s.revertOnError {
			base := s.baseline
			s.snap.Replace(Snapshot[T]{Data: base, Err: actionErr})
			if s.entry != nil {
				s.entry.Set(base)
			}
			middleware.RecordRevert()
		} else {
			cur := s.snap.Get().Data
			s.snap.Replace(Snapshot[T]{Data: cur, Err: actionErr})
		}
		middleware.RecordCommit(false)
		if cb := s.onCommitError; cb != nil {
			return func() { cb(actionErr) }
		}
		return nil
	})
}

// commitGate hands out FIFO tickets for Sequential states. Each entrant
// waits on the previous ticket's channel; closing a ticket admits the next.
type commitGate struct {
	mu   sync.Mutex
	tail chan struct{}
}

// enterCommit returns a wait function that blocks until it is this commit's
// turn and a release function that admits the successor. For states without
// Sequential both are no-ops.
func (s *State[T]) enterCommit() (wait, release func()) {
	if !s.sequential {
		return func() {}, func() {}
	}

	s.gate.mu.Lock()
	prev := s.gate.tail
	done := make(chan struct{})
	s.gate.tail = done
	s.gate.mu.Unlock()

	wait = func() {
		if prev != nil {
			<-prev
		}
	}
	release = func() { close(done) }
	return wait, release
}
