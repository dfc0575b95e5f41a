// Package state implements the optimistic state container: a value that can
// be mutated speculatively for immediate feedback while an authoritative
// asynchronous action confirms the change, reverting to the last known-good
// value when the action fails.
//
// A State owns one visible snapshot {Data, Optimistic, Err} plus a private
// baseline, the last confirmed value. Update applies a speculative change
// synchronously; Commit runs the confirming action and reconciles; Reset
// falls back to the baseline. A State can be tied to a key in a shared
// cache.Cache so independent bindings of the same logical value observe one
// consistent snapshot.
//
// Overlapping commits on one State are deliberately not serialized: the
// in-memory state and the shared cache entry are last-write-wins, and a
// commit that resolves later overwrites an earlier one. Callers that need
// strict ordering opt in with Sequential, which queues commits per instance.
// There is no cancellation; superseding a write is the only way to retire it.
package state

import (
	"log/slog"
	"sync"

	"github.com/optimist-go/optimist/pkg/cache"
	"github.com/optimist-go/optimist/pkg/loop"
	"github.com/optimist-go/optimist/pkg/reactive"
)

// Phase classifies the container's position in the optimistic lifecycle.
type Phase int

const (
	// PhaseIdle means Data equals the confirmed baseline (or a successful
	// commit's result) and no error is recorded.
	PhaseIdle Phase = iota

	// PhasePending means Data reflects an unconfirmed speculative change.
	PhasePending

	// PhaseFailed means the last commit failed; Err carries its error until
	// the next Update, successful commit, or Reset.
	PhaseFailed
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is the visible state triple.
type Snapshot[T any] struct {
	// Data is the current value. Whether it can be "absent" is the caller's
	// choice of T; pointer and slice types make the zero value a natural null.
	Data T

	// Optimistic is true while Data reflects an unconfirmed mutation.
	Optimistic bool

	// Err is non-nil only immediately after a failed commit. It holds the
	// action's error verbatim, never wrapped.
	Err error
}

// Phase derives the lifecycle phase from the snapshot flags.
func (sn Snapshot[T]) Phase() Phase {
	switch {
	case sn.Err != nil:
		return PhaseFailed
	case sn.Optimistic:
		return PhasePending
	default:
		return PhaseIdle
	}
}

// State is one logical binding of a value of type T.
//
// All methods are safe for concurrent use; with no Loop bound a mutex
// serializes transitions, with a Loop bound they additionally run on the
// loop goroutine in dispatch order.
type State[T any] struct {
	// snap holds the visible snapshot; watchers hang off it.
	snap *reactive.Value[Snapshot[T]]

	// mu guards baseline and transition application.
	mu sync.Mutex

	// baseline is the last confirmed value, the revert target.
	baseline T

	// entry is the optional shared cache binding.
	entry *cache.Entry[T]

	lp            *loop.Loop
	revertOnError bool
	sequential    bool
	gate          commitGate

	onCommit      func(T)
	onCommitError func(error)

	logger *slog.Logger
}

// New creates a State whose baseline and visible data start at initial.
// A bound cache entry is not written until the first Update or commit;
// cache entries come into being on first write.
func New[T any](initial T, opts ...Option[T]) *State[T] {
	s := &State[T]{
		snap:          reactive.NewValue(Snapshot[T]{Data: initial}),
		baseline:      initial,
		revertOnError: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Update applies a speculative mutation: Data becomes updater(Data),
// Optimistic is set, any recorded error is cleared, and the bound cache
// entry (if any) receives the new value. It returns once the transition is
// applied.
//
// The updater is assumed total; if it panics, the panic propagates to the
// caller and no state is modified. Confirming actions are where failure is
// expected, not here.
func (s *State[T]) Update(updater func(T) T) {
	// Run the updater before entering the transition so its panics surface
	// on the calling goroutine instead of the loop's recovery.
	next := updater(s.snap.Get().Data)

	s.apply(func() func() {
		s.snap.Replace(Snapshot[T]{Data: next, Optimistic: true})
		if s.entry != nil {
			s.entry.Set(next)
		}
		return nil
	})
}

// Reset restores Data to the baseline and clears Optimistic and Err,
// unconditionally and idempotently. A bound cache entry is re-synchronized
// to the baseline so shared consumers snap back too.
func (s *State[T]) Reset() {
	s.apply(func() func() {
		base := s.baseline
		s.snap.Replace(Snapshot[T]{Data: base})
		if s.entry != nil {
			s.entry.Set(base)
		}
		return nil
	})
}

// Data returns the current visible value.
func (s *State[T]) Data() T {
	return s.snap.Get().Data
}

// Baseline returns the last confirmed value.
func (s *State[T]) Baseline() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline
}

// IsOptimistic reports whether Data reflects an unconfirmed mutation.
func (s *State[T]) IsOptimistic() bool {
	return s.snap.Get().Optimistic
}

// Err returns the last commit failure, nil outside PhaseFailed.
func (s *State[T]) Err() error {
	return s.snap.Get().Err
}

// Phase returns the current lifecycle phase.
func (s *State[T]) Phase() Phase {
	return s.snap.Get().Phase()
}

// Snapshot returns the visible state triple.
func (s *State[T]) Snapshot() Snapshot[T] {
	return s.snap.Get()
}

// Watch registers fn to observe snapshot changes. Watchers run after the
// transition is applied, outside the container's internal lock; several
// transitions inside one reactive.Batch collapse to a single call carrying
// the final snapshot. The returned Cleanup removes the watcher.
//
// Watchers must not synchronously mutate the State they observe.
func (s *State[T]) Watch(fn func(Snapshot[T])) reactive.Cleanup {
	return s.snap.Watch(fn)
}

// apply runs one state transition. The function runs with the container
// lock held and returns an optional callback to invoke afterwards, outside
// the lock. Snapshot notifications are batched so watchers also fire after
// the lock is released.
//
// With a Loop bound the transition executes on the loop goroutine; if the
// loop has stopped, the transition falls back to direct application so
// state is never silently lost.
func (s *State[T]) apply(fn func() func()) {
	run := func() {
		var post func()
		reactive.Batch(func() {
			s.mu.Lock()
			post = fn()
			s.mu.Unlock()
		})
		if post != nil {
			post()
		}
	}

	if s.lp != nil {
		if err := s.lp.Call(run); err == nil {
			return
		}
		s.logger.Warn("state loop stopped, applying transition directly")
	}
	run()
}
