package state

import (
	"log/slog"

	oerrors "github.com/optimist-go/optimist/internal/errors"
	"github.com/optimist-go/optimist/pkg/cache"
	"github.com/optimist-go/optimist/pkg/loop"
)

// Option configures a State at construction.
type Option[T any] func(*State[T])

// WithEntry binds the State to an already-bound cache entry. Every Update,
// successful commit, revert, and Reset mirrors the visible value into the
// entry, so all consumers of the key observe the same snapshot.
func WithEntry[T any](e *cache.Entry[T]) Option[T] {
	return func(s *State[T]) {
		s.entry = e
	}
}

// WithCache binds the State to key in c, recording T as the key's type on
// first bind. Binding a key already bound to a different type is a
// programming error and panics; the payload is a coded error wrapping the
// cache.TypeMismatchError. Use cache.Bind plus WithEntry to handle the
// mismatch as a value.
func WithCache[T any](c *cache.Cache, key string) Option[T] {
	return func(s *State[T]) {
		e, err := cache.Bind[T](c, key)
		if err != nil {
			panic(oerrors.New("E001").WithDetail(err.Error()).Wrap(err))
		}
		s.entry = e
	}
}

// KeepOnError disables revert-on-failure: after a failed commit, Data keeps
// the optimistic value (now unconfirmed for good) while Err is still
// recorded. The caller decides whether to retry the commit or discard the
// value via Reset.
func KeepOnError[T any]() Option[T] {
	return func(s *State[T]) {
		s.revertOnError = false
	}
}

// OnCommit registers a callback invoked with the confirmed value after each
// successful commit, once the transition is applied.
func OnCommit[T any](fn func(T)) Option[T] {
	return func(s *State[T]) {
		s.onCommit = fn
	}
}

// OnCommitError registers a callback invoked with the action's error after
// each failed commit, once the revert (or keep) is applied.
func OnCommitError[T any](fn func(error)) Option[T] {
	return func(s *State[T]) {
		s.onCommitError = fn
	}
}

// WithLoop applies all transitions on l's goroutine, in dispatch order.
// Update and Reset remain synchronous to the caller; they return once the
// loop has applied the transition.
func WithLoop[T any](l *loop.Loop) Option[T] {
	return func(s *State[T]) {
		s.lp = l
	}
}

// Sequential queues commits per instance: each commit's action starts only
// after the previous commit has fully resolved, in call order. This is the
// deliberate alternative to the default last-write-wins overlap behavior.
func Sequential[T any]() Option[T] {
	return func(s *State[T]) {
		s.sequential = true
	}
}

// WithLogger sets the logger for transition diagnostics.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(s *State[T]) {
		s.logger = l
	}
}
