// Package optimist provides the public API for the optimist state cache.
//
// This is the recommended import for most applications:
//
//	import "github.com/optimist-go/optimist"
//
// Usage:
//
//	todos := optimist.NewState([]Todo{})
//	todos.Update(func(ts []Todo) []Todo { return append(ts, draft) })
//	optimist.GoCommit(todos, ctx, func(ctx context.Context) (Todo, error) {
//	    return api.CreateTodo(ctx, draft)
//	})
//
// Several States can share one value through a Cache: every Update, commit
// and revert writes through to the bound key, so readers of that key (other
// bindings, WebSocket clients on /sync, the REST surface) always see the
// latest writer:
//
//	c := optimist.NewCache()
//	editor := optimist.NewState([]Todo{}, optimist.WithCache[[]Todo](c, "todos"))
//	entry := optimist.MustBind[[]Todo](c, "todos")
//	editor.Update(func(ts []Todo) []Todo { return append(ts, draft) })
//	latest, _ := entry.Get() // the optimistic list, before the commit lands
package optimist

import (
	"context"
	"log/slog"

	"github.com/optimist-go/optimist/internal/errors"
	"github.com/optimist-go/optimist/pkg/cache"
	"github.com/optimist-go/optimist/pkg/hub"
	"github.com/optimist-go/optimist/pkg/loop"
	"github.com/optimist-go/optimist/pkg/reactive"
	"github.com/optimist-go/optimist/pkg/state"
)

// =============================================================================
// Optimistic state (re-export from pkg/state)
// =============================================================================

// State is one logical binding of a value of type T. Data mutates
// speculatively through Update for immediate feedback; Commit confirms or
// reverts it.
type State[T any] = state.State[T]

// Snapshot is the visible state triple {Data, Optimistic, Err}.
type Snapshot[T any] = state.Snapshot[T]

// Option configures a State at construction.
type Option[T any] = state.Option[T]

// Phase classifies a State's position in the optimistic lifecycle.
type Phase = state.Phase

// Lifecycle phases
const (
	PhaseIdle    = state.PhaseIdle
	PhasePending = state.PhasePending
	PhaseFailed  = state.PhaseFailed
)

// NewState creates a State whose baseline and visible data start at initial.
//
// Example:
//
//	counter := optimist.NewState(0)
//	counter.Update(func(n int) int { return n + 1 })
//	counter.Data() // 1, optimistic
func NewState[T any](initial T, opts ...Option[T]) *State[T] {
	return state.New(initial, opts...)
}

// WithEntry binds the State to a prepared typed cache entry.
func WithEntry[T any](e *Entry[T]) Option[T] {
	return state.WithEntry(e)
}

// WithCache binds the State to key in c, sharing the value with every other
// binding of that key. Panics with a coded error if the key is already bound
// to a different type.
func WithCache[T any](c *Cache, key string) Option[T] {
	return state.WithCache[T](c, key)
}

// KeepOnError keeps the optimistic value visible after a failed commit
// instead of reverting to the baseline.
func KeepOnError[T any]() Option[T] {
	return state.KeepOnError[T]()
}

// OnCommit registers a callback fired with the confirmed value after each
// successful commit.
func OnCommit[T any](fn func(T)) Option[T] {
	return state.OnCommit(fn)
}

// OnCommitError registers a callback fired with the action's error after
// each failed commit.
func OnCommitError[T any](fn func(error)) Option[T] {
	return state.OnCommitError[T](fn)
}

// WithLoop runs the State's transitions on a dispatch loop.
func WithLoop[T any](l *Loop) Option[T] {
	return state.WithLoop[T](l)
}

// Sequential queues overlapping commits on this State in call order instead
// of letting them race last-write-wins.
func Sequential[T any]() Option[T] {
	return state.Sequential[T]()
}

// WithStateLogger sets the State's logger. slog.Default() when unset.
func WithStateLogger[T any](l *slog.Logger) Option[T] {
	return state.WithLogger[T](l)
}

// =============================================================================
// Commits (re-export from pkg/state)
// =============================================================================

// CommitOption configures a single commit.
type CommitOption[T, R any] = state.CommitOption[T, R]

// Commit runs the confirming action for a speculative change and blocks
// until it reconciles. On success it returns (result, true); on failure the
// error is recorded on the State and Commit returns (zero, false).
//
// Example:
//
//	todos.Update(func(ts []Todo) []Todo { return append(ts, draft) })
//	saved, ok := optimist.Commit(todos, ctx, func(ctx context.Context) (Todo, error) {
//	    return api.CreateTodo(ctx, draft)
//	})
func Commit[T, R any](s *State[T], ctx context.Context, action func(context.Context) (R, error), opts ...CommitOption[T, R]) (R, bool) {
	return state.Commit(s, ctx, action, opts...)
}

// GoCommit runs Commit on a new goroutine for callers that must not block.
// The outcome is observable through the State and its callbacks.
func GoCommit[T, R any](s *State[T], ctx context.Context, action func(context.Context) (R, error), opts ...CommitOption[T, R]) {
	state.GoCommit(s, ctx, action, opts...)
}

// Transform sets how a successful action result becomes the confirmed
// value: final = fn(result, current visible data).
func Transform[T, R any](fn func(result R, current T) T) CommitOption[T, R] {
	return state.Transform(fn)
}

// =============================================================================
// Shared cache (re-export from pkg/cache)
// =============================================================================

// Cache is a keyed store shared by every State bound to it. Each key is
// typed by its first binding; later bindings must agree.
type Cache = cache.Cache

// CacheOption configures a Cache at construction.
type CacheOption = cache.Option

// Entry is a typed view of one cache key.
type Entry[T any] = cache.Entry[T]

// Event describes one change to a cache key.
type Event = cache.Event

// NewCache creates an empty cache.
//
// Example:
//
//	c := optimist.NewCache(optimist.CacheTTL(time.Hour))
var NewCache = cache.New

// CacheTTL expires entries that have not been written for d.
var CacheTTL = cache.WithTTL

// CacheJanitorInterval sets how often expired entries are collected.
var CacheJanitorInterval = cache.WithJanitorInterval

// CacheLogger sets the cache's logger.
var CacheLogger = cache.WithLogger

// Bind returns the typed entry for key, binding the key to T if this is its
// first binding. A *cache.TypeMismatchError is returned when the key is
// already bound to a different type.
func Bind[T any](c *Cache, key string) (*Entry[T], error) {
	return cache.Bind[T](c, key)
}

// MustBind is Bind that panics on type mismatch. For package-level wiring
// where a mismatch is a programming error.
func MustBind[T any](c *Cache, key string) *Entry[T] {
	return cache.MustBind[T](c, key)
}

// =============================================================================
// Update loop (re-export from pkg/loop)
// =============================================================================

// Loop executes dispatched state transitions sequentially on one goroutine.
type Loop = loop.Loop

// NewLoop creates a loop. It does not start processing until Run or Start.
var NewLoop = loop.New

// =============================================================================
// Sync (re-export from pkg/hub)
// =============================================================================

// Hub fans cache changes out to WebSocket sessions on /sync.
type Hub = hub.Hub

// =============================================================================
// Watching
// =============================================================================

// Cleanup detaches a watcher registered with Watch or Subscribe.
type Cleanup = reactive.Cleanup

// =============================================================================
// Errors
// =============================================================================

// ErrTypeMismatch is the sentinel every cache type conflict matches.
var ErrTypeMismatch = cache.ErrTypeMismatch

// TypeMismatchError reports a bind against a key of a different type.
type TypeMismatchError = cache.TypeMismatchError

// ErrLoopClosed is returned by Loop.Dispatch and Loop.Call after Stop.
var ErrLoopClosed = loop.ErrClosed

// ErrQueueFull is returned when a Loop's dispatch queue is saturated.
var ErrQueueFull = loop.ErrQueueFull

// Error is a coded diagnostic with detail and suggestion text.
type Error = errors.Error
