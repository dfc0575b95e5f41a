package state

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/optimist-go/optimist/pkg/cache"
)

func TestCommitSuccessWithTransform(t *testing.T) {
	s := New("")
	s.Update(func(string) string { return "draft" })

	result, ok := Commit(s, context.Background(),
		func(context.Context) (string, error) { return "draft-saved", nil },
		Transform(func(r string, _ string) string { return r }),
	)

	if !ok || result != "draft-saved" {
		t.Fatalf("expected (draft-saved, true), got (%q, %v)", result, ok)
	}
	if s.Data() != "draft-saved" {
		t.Errorf("expected data draft-saved, got %q", s.Data())
	}
	if s.IsOptimistic() {
		t.Error("optimistic must clear after successful commit")
	}
	if s.Err() != nil {
		t.Errorf("expected nil error, got %v", s.Err())
	}

	// The confirmed value is the new baseline, so a reset is a no-op.
	s.Reset()
	if s.Data() != "draft-saved" {
		t.Errorf("reset after commit changed data to %q", s.Data())
	}
}

func TestCommitWithoutTransformConfirmsCurrent(t *testing.T) {
	s := New("")
	s.Update(func(string) string { return "draft" })

	result, ok := Commit(s, context.Background(),
		func(context.Context) (int, error) { return 204, nil },
	)

	if !ok || result != 204 {
		t.Fatalf("expected (204, true), got (%d, %v)", result, ok)
	}
	if s.Data() != "draft" {
		t.Errorf("omitted transform must confirm current data, got %q", s.Data())
	}
	if s.Baseline() != "draft" {
		t.Errorf("expected baseline draft, got %q", s.Baseline())
	}
	if s.IsOptimistic() {
		t.Error("optimistic must clear")
	}
}

func TestCommitFailureReverts(t *testing.T) {
	s := New([]string{"A"})
	s.Update(func(cur []string) []string { return append(cur[:len(cur):len(cur)], "B") })

	if got := s.Data(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Fatalf("expected optimistic [A B], got %v", got)
	}

	result, ok := Commit(s, context.Background(),
		func(context.Context) ([]string, error) { return nil, errors.New("network") },
	)

	if ok || result != nil {
		t.Errorf("failed commit must resolve to (zero, false), got (%v, %v)", result, ok)
	}
	if got := s.Data(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("expected revert to [A], got %v", got)
	}
	if s.Err() == nil || s.Err().Error() != "network" {
		t.Errorf("expected verbatim error %q, got %v", "network", s.Err())
	}
	if s.IsOptimistic() {
		t.Error("optimistic must clear after failed commit")
	}
	if s.Phase() != PhaseFailed {
		t.Errorf("expected failed phase, got %s", s.Phase())
	}
}

func TestCommitFailureKeepOnError(t *testing.T) {
	s := New("saved", KeepOnError[string]())
	s.Update(func(string) string { return "speculative" })

	_, ok := Commit(s, context.Background(),
		func(context.Context) (struct{}, error) { return struct{}{}, errors.New("validation") },
	)

	if ok {
		t.Error("failed commit reported success")
	}
	if s.Data() != "speculative" {
		t.Errorf("KeepOnError must retain optimistic value, got %q", s.Data())
	}
	if s.Err() == nil || s.Err().Error() != "validation" {
		t.Errorf("expected validation error, got %v", s.Err())
	}
	if s.IsOptimistic() {
		t.Error("optimistic must clear even when keeping the value")
	}
	if s.Baseline() != "saved" {
		t.Errorf("baseline must stay saved, got %q", s.Baseline())
	}
}

func TestCommitErrorIdentityPreserved(t *testing.T) {
	sentinel := errors.New("quota exceeded")
	s := New(0)

	Commit(s, context.Background(), func(context.Context) (int, error) { return 0, sentinel })

	if !errors.Is(s.Err(), sentinel) {
		t.Errorf("recorded error must be the action's error verbatim, got %v", s.Err())
	}
}

func TestErrorClearedByNextUpdate(t *testing.T) {
	s := New(0)
	Commit(s, context.Background(), func(context.Context) (int, error) { return 0, errors.New("network") })

	if s.Phase() != PhaseFailed {
		t.Fatalf("expected failed phase, got %s", s.Phase())
	}

	s.Update(func(n int) int { return n + 1 })
	if s.Err() != nil || s.Phase() != PhasePending {
		t.Errorf("update must clear error, got err=%v phase=%s", s.Err(), s.Phase())
	}
}

func TestErrorClearedBySuccessfulCommit(t *testing.T) {
	s := New(0)
	Commit(s, context.Background(), func(context.Context) (int, error) { return 0, errors.New("network") })

	_, ok := Commit(s, context.Background(),
		func(context.Context) (int, error) { return 5, nil },
		Transform(func(r int, _ int) int { return r }),
	)
	if !ok {
		t.Fatal("commit failed")
	}
	if s.Err() != nil || s.Phase() != PhaseIdle || s.Data() != 5 {
		t.Errorf("expected clean idle state with 5, got %+v", s.Snapshot())
	}
}

func TestCacheSynchronization(t *testing.T) {
	c := cache.New()
	defer c.Close()
	s := New([]string{"A"}, WithCache[[]string](c, "idea:7:tags"))

	s.Update(func(cur []string) []string { return append(cur[:len(cur):len(cur)], "B") })

	// Successful commit: cache equals confirmed data.
	_, ok := Commit(s, context.Background(),
		func(context.Context) (struct{}, error) { return struct{}{}, nil },
	)
	if !ok {
		t.Fatal("commit failed")
	}
	val, _ := c.Get("idea:7:tags")
	if !reflect.DeepEqual(val, []string{"A", "B"}) {
		t.Errorf("expected cache [A B] after commit, got %v", val)
	}

	// Reverted failure: cache equals restored baseline.
	s.Update(func(cur []string) []string { return append(cur[:len(cur):len(cur)], "C") })
	Commit(s, context.Background(),
		func(context.Context) (struct{}, error) { return struct{}{}, errors.New("network") },
	)
	val, _ = c.Get("idea:7:tags")
	if !reflect.DeepEqual(val, []string{"A", "B"}) {
		t.Errorf("expected cache restored to [A B], got %v", val)
	}
	if got := s.Data(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("expected data restored to [A B], got %v", got)
	}
}

func TestAppendRejectScenario(t *testing.T) {
	// Baseline ["A"], optimistic append of "B", rejected commit: the data,
	// error, and flags all land exactly on the documented contract.
	s := New([]string{"A"})

	s.Update(func(cur []string) []string { return append(cur[:len(cur):len(cur)], "B") })
	if got := s.Data(); !reflect.DeepEqual(got, []string{"A", "B"}) || !s.IsOptimistic() {
		t.Fatalf("expected optimistic [A B], got %v optimistic=%v", got, s.IsOptimistic())
	}

	result, ok := Commit(s, context.Background(),
		func(context.Context) (any, error) { return nil, errors.New("network") },
	)

	if ok || result != nil {
		t.Errorf("rejection must resolve to null result, got (%v, %v)", result, ok)
	}
	if got := s.Data(); !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("expected final data [A], got %v", got)
	}
	if s.Err() == nil || s.Err().Error() != "network" {
		t.Errorf("expected error message network, got %v", s.Err())
	}
	if s.IsOptimistic() {
		t.Error("expected optimistic false")
	}
}

func TestCommitCallbacks(t *testing.T) {
	var confirmed []string
	var failed []error

	s := New(0,
		OnCommit[int](func(v int) { confirmed = append(confirmed, "ok") }),
		OnCommitError[int](func(err error) { failed = append(failed, err) }),
	)

	Commit(s, context.Background(),
		func(context.Context) (int, error) { return 1, nil },
		Transform(func(r int, _ int) int { return r }),
	)
	Commit(s, context.Background(),
		func(context.Context) (int, error) { return 0, errors.New("network") },
	)

	if len(confirmed) != 1 {
		t.Errorf("expected 1 success callback, got %d", len(confirmed))
	}
	if len(failed) != 1 || failed[0].Error() != "network" {
		t.Errorf("expected network error callback, got %v", failed)
	}
}

func TestGoCommitAppliesInBackground(t *testing.T) {
	s := New("")
	s.Update(func(string) string { return "draft" })

	GoCommit(s, context.Background(),
		func(context.Context) (string, error) { return "draft-saved", nil },
		Transform(func(r string, _ string) string { return r }),
	)

	waitUntil(t, func() bool { return s.Data() == "draft-saved" && !s.IsOptimistic() })
}

func TestOverlappingCommitsLastWriteWins(t *testing.T) {
	s := New(0)

	releaseFirst := make(chan struct{})
	releaseSecond := make(chan struct{})
	done := make(chan struct{}, 2)

	go func() {
		Commit(s, context.Background(),
			func(context.Context) (int, error) { <-releaseFirst; return 1, nil },
			Transform(func(r int, _ int) int { return r }),
		)
		done <- struct{}{}
	}()
	go func() {
		Commit(s, context.Background(),
			func(context.Context) (int, error) { <-releaseSecond; return 2, nil },
			Transform(func(r int, _ int) int { return r }),
		)
		done <- struct{}{}
	}()

	// First commit resolves first, second resolves last and wins.
	close(releaseFirst)
	<-done
	close(releaseSecond)
	<-done

	if s.Data() != 2 {
		t.Errorf("expected last resolver to win with 2, got %d", s.Data())
	}
	if s.Baseline() != 2 {
		t.Errorf("expected baseline 2, got %d", s.Baseline())
	}
}

func TestSequentialCommitsRunInCallOrder(t *testing.T) {
	s := New(0, Sequential[int]())

	started := make(chan int, 2)
	finishFirst := make(chan struct{})

	GoCommit(s, context.Background(), func(context.Context) (int, error) {
		started <- 1
		<-finishFirst
		return 1, nil
	})
	GoCommit(s, context.Background(), func(context.Context) (int, error) {
		started <- 2
		return 2, nil
	}, Transform(func(r int, _ int) int { return r }))

	if first := <-started; first != 1 {
		t.Fatalf("expected first commit to start first, got %d", first)
	}

	// The second commit must not start while the first is in flight.
	select {
	case <-started:
		t.Fatal("second commit started before first resolved")
	case <-time.After(50 * time.Millisecond):
	}

	close(finishFirst)
	if second := <-started; second != 2 {
		t.Fatalf("expected second commit next, got %d", second)
	}

	waitUntil(t, func() bool { return s.Data() == 2 })
}
