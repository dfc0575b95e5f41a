// Package statetest provides testing helpers for optimistic state containers.
//
// The statetest package reduces boilerplate when testing code built on
// state.State by bundling the usual fixtures, an isolated cache plus a
// running dispatch loop, and by providing assertion helpers for the
// data, baseline and phase of a container.
//
// # Quick Start
//
//	func TestSaveDraft(t *testing.T) {
//	    w := statetest.NewWorld(t)
//	    s := statetest.NewState(w, "draft", "")
//
//	    s.Update(func(string) string { return "hello" })
//	    state.GoCommit(s, context.Background(), statetest.SlowAction(10*time.Millisecond, "hello"))
//
//	    statetest.AwaitIdle(t, s)
//	    statetest.ExpectData(t, s, "hello")
//	    statetest.ExpectPhase(t, s, state.PhaseIdle)
//	}
//
// # Worlds
//
// NewWorld builds the cache and the loop and registers their teardown
// with t.Cleanup, so tests never leak goroutines or share keys:
//
//	w := statetest.NewWorld(t,
//	    statetest.WithCacheOptions(cache.WithTTL(time.Minute)))
//
// NewState wires a container to the world's cache and loop in one call.
//
// # Canned Actions
//
// FailingAction and SlowAction are commit actions with predictable
// outcomes for driving the failure and in-flight paths:
//
//	s.Update(func(n int) int { return n + 1 })
//	state.GoCommit(s, ctx, statetest.FailingAction[int]("backend down"))
//	statetest.AwaitIdle(t, s)
//	statetest.ExpectErr(t, s, "backend down")
//	statetest.ExpectData(t, s, 0) // reverted
package statetest
