package statetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/optimist-go/optimist/pkg/cache"
	"github.com/optimist-go/optimist/pkg/loop"
	"github.com/optimist-go/optimist/pkg/state"
)

// World bundles the fixtures most state tests need: an isolated cache and
// a running dispatch loop. Both are torn down via t.Cleanup, the loop
// first so no transition lands on a closed cache.
type World struct {
	Cache *cache.Cache
	Loop  *loop.Loop
}

// WorldOption configures a World.
type WorldOption func(*worldConfig)

type worldConfig struct {
	cacheOpts []cache.Option
	loopOpts  []loop.Option
}

// WithCacheOptions forwards options to the world's cache.
//
// Example:
//
//	w := statetest.NewWorld(t, statetest.WithCacheOptions(cache.WithTTL(time.Minute)))
func WithCacheOptions(opts ...cache.Option) WorldOption {
	return func(c *worldConfig) {
		c.cacheOpts = append(c.cacheOpts, opts...)
	}
}

// WithLoopOptions forwards options to the world's loop.
func WithLoopOptions(opts ...loop.Option) WorldOption {
	return func(c *worldConfig) {
		c.loopOpts = append(c.loopOpts, opts...)
	}
}

// NewWorld creates an isolated cache and a started loop for one test.
//
// Example:
//
//	w := statetest.NewWorld(t)
//	s := statetest.NewState(w, "cart", []Item(nil))
func NewWorld(tb testing.TB, opts ...WorldOption) *World {
	tb.Helper()

	var cfg worldConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	c := cache.New(cfg.cacheOpts...)
	l := loop.New(cfg.loopOpts...)
	l.Start()

	tb.Cleanup(func() {
		l.Stop()
		c.Close()
	})

	return &World{Cache: c, Loop: l}
}

// NewState builds a container wired to the world's cache and loop. With a
// non-empty key the container binds that cache key; with "" it stays
// unbound but still dispatches on the world's loop.
//
// Example:
//
//	s := statetest.NewState(w, "draft", "", state.KeepOnError[string]())
func NewState[T any](w *World, key string, initial T, opts ...state.Option[T]) *state.State[T] {
	wired := make([]state.Option[T], 0, len(opts)+2)
	wired = append(wired, state.WithLoop[T](w.Loop))
	if key != "" {
		wired = append(wired, state.WithCache[T](w.Cache, key))
	}
	wired = append(wired, opts...)
	return state.New(initial, wired...)
}

// FailingAction returns a commit action that always fails with a fresh
// error whose message is msg. Pair it with ExpectErr, which matches on
// the message.
//
// Example:
//
//	state.GoCommit(s, ctx, statetest.FailingAction[int]("backend down"))
func FailingAction[R any](msg string) func(context.Context) (R, error) {
	return func(context.Context) (R, error) {
		var zero R
		return zero, errors.New(msg)
	}
}

// SlowAction returns a commit action that succeeds with result after d,
// or returns ctx.Err() if the context ends first. Use it to hold a state
// in its optimistic window long enough to assert on it.
//
// Example:
//
//	state.GoCommit(s, ctx, statetest.SlowAction(50*time.Millisecond, saved))
func SlowAction[R any](d time.Duration, result R) func(context.Context) (R, error) {
	return func(ctx context.Context) (R, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			var zero R
			return zero, ctx.Err()
		case <-timer.C:
			return result, nil
		}
	}
}
