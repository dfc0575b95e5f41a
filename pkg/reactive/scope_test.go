package reactive

import "testing"

func TestScopeCleanupOrder(t *testing.T) {
	s := NewScope(nil)

	var order []string
	s.OnCleanup(func() { order = append(order, "first") })
	s.OnCleanup(func() { order = append(order, "second") })

	s.Dispose()

	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("expected reverse cleanup order [second first], got %v", order)
	}
}

func TestScopeDisposesChildrenFirst(t *testing.T) {
	root := NewScope(nil)
	child := NewScope(root)

	var order []string
	root.OnCleanup(func() { order = append(order, "root") })
	child.OnCleanup(func() { order = append(order, "child") })

	root.Dispose()

	if len(order) != 2 || order[0] != "child" || order[1] != "root" {
		t.Errorf("expected [child root], got %v", order)
	}
	if !child.IsDisposed() {
		t.Error("child not disposed with parent")
	}
}

func TestScopeDisposeIdempotent(t *testing.T) {
	s := NewScope(nil)

	runs := 0
	s.OnCleanup(func() { runs++ })

	s.Dispose()
	s.Dispose()

	if runs != 1 {
		t.Errorf("cleanup ran %d times, expected 1", runs)
	}
}

func TestScopeCleanupAfterDisposeRunsImmediately(t *testing.T) {
	s := NewScope(nil)
	s.Dispose()

	ran := false
	s.OnCleanup(func() { ran = true })

	if !ran {
		t.Error("cleanup registered after dispose should run immediately")
	}
}

func TestScopeChildDisposeDetaches(t *testing.T) {
	root := NewScope(nil)
	child := NewScope(root)

	childRuns := 0
	child.OnCleanup(func() { childRuns++ })

	child.Dispose()
	root.Dispose()

	if childRuns != 1 {
		t.Errorf("detached child cleanup ran %d times, expected 1", childRuns)
	}
}

func TestScopeWatchTeardown(t *testing.T) {
	count := NewValue(0)
	s := NewScope(nil)

	obs := newTestObserver()
	count.Subscribe(obs)
	s.OnCleanup(func() { count.Unsubscribe(obs) })

	count.Set(1)
	s.Dispose()
	count.Set(2)

	if obs.count() != 1 {
		t.Errorf("expected subscription torn down with scope, got %d notifications", obs.count())
	}
}
