package cache

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestGetSetDelete(t *testing.T) {
	c := New()
	defer c.Close()

	if _, ok := c.Get("idea:1"); ok {
		t.Error("expected miss on empty cache")
	}

	c.Set("idea:1", "launch plan")
	val, ok := c.Get("idea:1")
	if !ok || val.(string) != "launch plan" {
		t.Errorf("expected hit with %q, got %v %v", "launch plan", val, ok)
	}

	c.Delete("idea:1")
	if _, ok := c.Get("idea:1"); ok {
		t.Error("expected miss after delete")
	}
}

func TestSetCheckedTypeMismatch(t *testing.T) {
	c := New()
	defer c.Close()

	if _, err := Bind[string](c, "idea:1"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	err := c.SetChecked("idea:1", 42)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}

	var tme *TypeMismatchError
	if !errors.As(err, &tme) {
		t.Fatalf("expected TypeMismatchError, got %T", err)
	}
	if tme.Key != "idea:1" {
		t.Errorf("expected key idea:1 in error, got %q", tme.Key)
	}
}

func TestSetPanicsOnBoundMismatch(t *testing.T) {
	c := New()
	defer c.Close()
	MustBind[string](c, "idea:1")

	defer func() {
		if recover() == nil {
			t.Error("expected panic writing int to string-bound key")
		}
	}()
	c.Set("idea:1", 42)
}

func TestSubscribeEvents(t *testing.T) {
	c := New()
	defer c.Close()

	var mu sync.Mutex
	var got []Event
	stop := c.Subscribe("idea:1", func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})
	defer stop()

	c.Set("idea:1", "a")
	c.Set("idea:2", "unrelated")
	c.Delete("idea:1")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Value.(string) != "a" || got[0].Version != 1 || got[0].Deleted {
		t.Errorf("unexpected first event: %+v", got[0])
	}
	if !got[1].Deleted || got[1].Version != 2 {
		t.Errorf("unexpected delete event: %+v", got[1])
	}
}

func TestSubscribeStop(t *testing.T) {
	c := New()
	defer c.Close()

	count := 0
	stop := c.Subscribe("idea:1", func(Event) { count++ })

	c.Set("idea:1", "a")
	stop()
	c.Set("idea:1", "b")

	if count != 1 {
		t.Errorf("expected 1 event after stop, got %d", count)
	}
}

func TestSubscribeAll(t *testing.T) {
	c := New()
	defer c.Close()

	var keys []string
	stop := c.SubscribeAll(func(ev Event) { keys = append(keys, ev.Key) })
	defer stop()

	c.Set("idea:1", "a")
	c.Set("idea:2", "b")
	c.Delete("idea:1")

	if len(keys) != 3 || keys[0] != "idea:1" || keys[1] != "idea:2" || keys[2] != "idea:1" {
		t.Errorf("expected all-key event stream, got %v", keys)
	}
}

func TestVersionMonotonic(t *testing.T) {
	c := New()
	defer c.Close()

	if c.Version("idea:1") != 0 {
		t.Error("expected version 0 for unwritten key")
	}

	c.Set("idea:1", "a")
	c.Set("idea:1", "b")
	c.Delete("idea:1")
	c.Set("idea:1", "c")

	if v := c.Version("idea:1"); v != 4 {
		t.Errorf("expected version 4, got %d", v)
	}
}

func TestStats(t *testing.T) {
	c := New()
	defer c.Close()

	c.Set("idea:1", "a")
	c.Get("idea:1")
	c.Get("missing")
	c.Delete("idea:1")

	s := c.Stats()
	if s.Sets != 1 || s.Hits != 1 || s.Misses != 1 || s.Deletes != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.Keys != 0 {
		t.Errorf("expected 0 live keys, got %d", s.Keys)
	}
}

func TestKeysAndRange(t *testing.T) {
	c := New()
	defer c.Close()

	c.Set("idea:1", "a")
	c.Set("idea:2", "b")
	c.Set("idea:3", "c")
	c.Delete("idea:2")

	keys := c.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "idea:1" || keys[1] != "idea:3" {
		t.Errorf("expected [idea:1 idea:3], got %v", keys)
	}

	seen := map[string]any{}
	c.Range(func(key string, val any, _ uint64) bool {
		seen[key] = val
		return true
	})
	if len(seen) != 2 || seen["idea:1"] != "a" || seen["idea:3"] != "c" {
		t.Errorf("unexpected range contents: %v", seen)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(WithTTL(20*time.Millisecond), WithJanitorInterval(10*time.Millisecond))
	defer c.Close()

	deleted := make(chan string, 1)
	stop := c.Subscribe("idea:1", func(ev Event) {
		if ev.Deleted {
			deleted <- ev.Key
		}
	})
	defer stop()

	c.Set("idea:1", "a")

	select {
	case key := <-deleted:
		if key != "idea:1" {
			t.Errorf("expected idea:1 expiry, got %q", key)
		}
	case <-time.After(time.Second):
		t.Fatal("entry never expired")
	}

	if _, ok := c.Get("idea:1"); ok {
		t.Error("expected miss after expiry")
	}
}

func TestUntypedNilOnNilableBinding(t *testing.T) {
	c := New()
	defer c.Close()
	e := MustBind[[]string](c, "idea:tags")

	if err := c.SetChecked("idea:tags", nil); err != nil {
		t.Fatalf("nil write to slice-bound key: %v", err)
	}

	tags, ok := e.Get()
	if !ok {
		t.Fatal("expected present entry after nil write")
	}
	if tags != nil {
		t.Errorf("expected typed nil slice, got %v", tags)
	}
}

func TestDeleteKeepsBinding(t *testing.T) {
	c := New()
	defer c.Close()

	MustBind[string](c, "idea:1")
	c.Set("idea:1", "a")
	c.Delete("idea:1")

	if _, err := Bind[int](c, "idea:1"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("binding should survive deletion, got %v", err)
	}
}
