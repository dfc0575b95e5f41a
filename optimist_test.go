package optimist

import (
	"context"
	"errors"
	"testing"
	"time"
)

// =============================================================================
// State Facade Tests
// =============================================================================

func TestNewState(t *testing.T) {
	s := NewState(42)
	if s.Data() != 42 {
		t.Errorf("expected 42, got %d", s.Data())
	}
	if s.IsOptimistic() {
		t.Error("new state should not be optimistic")
	}
	if s.Phase() != PhaseIdle {
		t.Errorf("expected PhaseIdle, got %v", s.Phase())
	}
}

func TestUpdateThenCommit(t *testing.T) {
	s := NewState("v1")

	s.Update(func(string) string { return "v2" })
	if s.Phase() != PhasePending {
		t.Fatalf("expected PhasePending after Update, got %v", s.Phase())
	}

	result, ok := Commit(s, context.Background(), func(ctx context.Context) (string, error) {
		return "v2-saved", nil
	}, Transform(func(r, _ string) string { return r }))

	if !ok {
		t.Fatal("expected commit to succeed")
	}
	if result != "v2-saved" {
		t.Errorf("expected result %q, got %q", "v2-saved", result)
	}
	if s.Data() != "v2-saved" {
		t.Errorf("expected data %q, got %q", "v2-saved", s.Data())
	}
	if s.Phase() != PhaseIdle {
		t.Errorf("expected PhaseIdle after commit, got %v", s.Phase())
	}
}

func TestCommitFailureReverts(t *testing.T) {
	s := NewState(1)
	s.Update(func(int) int { return 2 })

	_, ok := Commit(s, context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("backend down")
	})

	if ok {
		t.Fatal("expected commit to fail")
	}
	if s.Data() != 1 {
		t.Errorf("expected revert to 1, got %d", s.Data())
	}
	if s.Err() == nil || s.Err().Error() != "backend down" {
		t.Errorf("expected error %q, got %v", "backend down", s.Err())
	}
	if s.Phase() != PhaseFailed {
		t.Errorf("expected PhaseFailed, got %v", s.Phase())
	}
}

func TestKeepOnError(t *testing.T) {
	s := NewState("base", KeepOnError[string]())
	s.Update(func(string) string { return "edited" })

	_, ok := Commit(s, context.Background(), func(ctx context.Context) (string, error) {
		return "", errors.New("rejected")
	})

	if ok {
		t.Fatal("expected commit to fail")
	}
	if s.Data() != "edited" {
		t.Errorf("expected optimistic value kept, got %q", s.Data())
	}
	if s.Err() == nil {
		t.Error("expected error recorded")
	}
}

func TestGoCommit(t *testing.T) {
	done := make(chan int, 1)
	s := NewState(0, OnCommit[int](func(v int) { done <- v }))

	s.Update(func(int) int { return 5 })
	GoCommit(s, context.Background(), func(ctx context.Context) (int, error) {
		return 5, nil
	})

	select {
	case v := <-done:
		if v != 5 {
			t.Errorf("expected confirmed value 5, got %d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for commit callback")
	}

	if s.Data() != 5 || s.Phase() != PhaseIdle {
		t.Errorf("expected settled state {5, idle}, got {%d, %v}", s.Data(), s.Phase())
	}
}

func TestStateOnLoop(t *testing.T) {
	l := NewLoop()
	l.Start()
	defer l.Stop()

	s := NewState(0, WithLoop[int](l))
	s.Update(func(n int) int { return n + 1 })

	if s.Data() != 1 {
		t.Errorf("expected 1, got %d", s.Data())
	}
}

// =============================================================================
// Shared Cache Tests
// =============================================================================

func TestSharedCacheBinding(t *testing.T) {
	c := NewCache()
	defer c.Close()

	s := NewState(0, WithCache[int](c, "counter"))
	entry := MustBind[int](c, "counter")

	// Entries come into being on first write.
	if _, ok := entry.Get(); ok {
		t.Fatal("key should be empty before the first write")
	}

	s.Update(func(n int) int { return n + 1 })
	if v, ok := entry.Get(); !ok || v != 1 {
		t.Errorf("expected shared value 1, got %d (present=%v)", v, ok)
	}

	// A reverted failure re-synchronizes the shared value to the baseline.
	_, committed := Commit(s, context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("save failed")
	})
	if committed {
		t.Fatal("expected commit to fail")
	}
	if v, ok := entry.Get(); !ok || v != 0 {
		t.Errorf("expected shared value reverted to 0, got %d (present=%v)", v, ok)
	}
}

func TestBindTypeMismatch(t *testing.T) {
	c := NewCache()
	defer c.Close()

	MustBind[string](c, "idea:title")

	_, err := Bind[int](c, "idea:title")
	if err == nil {
		t.Fatal("expected bind to fail for a conflicting type")
	}
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
	var tm *TypeMismatchError
	if !errors.As(err, &tm) {
		t.Errorf("expected *TypeMismatchError, got %T", err)
	}
}

func TestCacheOptionsExist(t *testing.T) {
	c := NewCache(CacheTTL(time.Hour), CacheJanitorInterval(time.Minute))
	defer c.Close()

	c.Set("k", "v")
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Errorf("expected %q, got %v (present=%v)", "v", v, ok)
	}
}

// =============================================================================
// Phase Tests
// =============================================================================

func TestPhaseStrings(t *testing.T) {
	cases := []struct {
		phase Phase
		want  string
	}{
		{PhaseIdle, "idle"},
		{PhasePending, "pending"},
		{PhaseFailed, "failed"},
	}
	for _, tc := range cases {
		if got := tc.phase.String(); got != tc.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tc.phase, got, tc.want)
		}
	}
}
