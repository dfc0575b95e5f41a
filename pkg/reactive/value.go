package reactive

import (
	"reflect"
	"sync"
)

// valueBase provides type-erased observer management.
// It is embedded in Value[T] so subscription logic stays independent of T.
type valueBase struct {
	id uint64

	// obs are the observers subscribed to this value.
	obs []Observer

	// obsMu protects the obs slice.
	obsMu sync.RWMutex
}

// subscribe adds an observer, deduplicating by observer ID.
func (b *valueBase) subscribe(o Observer) {
	if o == nil {
		return
	}

	b.obsMu.Lock()
	defer b.obsMu.Unlock()

	oid := o.ObserverID()
	for _, existing := range b.obs {
		if existing.ObserverID() == oid {
			return
		}
	}

	b.obs = append(b.obs, o)
}

// unsubscribe removes an observer by ID.
func (b *valueBase) unsubscribe(o Observer) {
	if o == nil {
		return
	}

	b.obsMu.Lock()
	defer b.obsMu.Unlock()

	oid := o.ObserverID()
	for i, existing := range b.obs {
		if existing.ObserverID() == oid {
			// Order does not matter; swap with the last element.
			b.obs[i] = b.obs[len(b.obs)-1]
			b.obs = b.obs[:len(b.obs)-1]
			return
		}
	}
}

// notifyObservers notifies every subscriber that the value changed.
// Observers are copied out before notification so no lock is held while
// observer code runs. Inside a batch the notifications are queued instead
// and flushed, deduplicated, when the outermost batch completes.
func (b *valueBase) notifyObservers() {
	b.obsMu.RLock()
	obs := make([]Observer, len(b.obs))
	copy(obs, b.obs)
	b.obsMu.RUnlock()

	if bs := activeBatch(); bs != nil {
		bs.queue(obs)
		return
	}

	for _, o := range obs {
		o.MarkStale()
	}
}

// Value is an observable container for a single value of type T.
// All methods are safe for concurrent use.
type Value[T any] struct {
	base valueBase

	// cur is the current value.
	cur T

	// mu protects cur.
	mu sync.RWMutex

	// equal decides whether a write changed the value.
	// If nil, defaultEquals is used.
	equal func(T, T) bool
}

// NewValue creates an observable value with the given initial content.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		base: valueBase{id: nextID()},
		cur:  initial,
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur
}

// Set stores a new value and notifies observers if it differs from the
// current one under the configured equality.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	changed := !v.equals(v.cur, val)
	if changed {
		v.cur = val
	}
	v.mu.Unlock()

	if changed {
		v.base.notifyObservers()
	}
}

// Update atomically transforms the current value.
// The function receives the current value and returns the new one.
func (v *Value[T]) Update(fn func(T) T) {
	v.mu.Lock()
	oldVal := v.cur
	newVal := fn(oldVal)
	changed := !v.equals(oldVal, newVal)
	if changed {
		v.cur = newVal
	}
	v.mu.Unlock()

	if changed {
		v.base.notifyObservers()
	}
}

// Replace stores a new value and notifies observers unconditionally,
// bypassing the equality check. Use it when a write is an event in itself,
// even if the content happens to compare equal.
func (v *Value[T]) Replace(val T) {
	v.mu.Lock()
	v.cur = val
	v.mu.Unlock()

	v.base.notifyObservers()
}

// WithEquals configures a custom equality function and returns the value for
// chaining. Useful where reflect.DeepEqual is too expensive or has the wrong
// semantics for T.
func (v *Value[T]) WithEquals(fn func(T, T) bool) *Value[T] {
	v.equal = fn
	return v
}

// Subscribe registers an observer for change notifications.
func (v *Value[T]) Subscribe(o Observer) {
	v.base.subscribe(o)
}

// Unsubscribe removes a previously registered observer.
func (v *Value[T]) Unsubscribe(o Observer) {
	v.base.unsubscribe(o)
}

// Watch registers fn to be called with the latest value after each change.
// The returned Cleanup removes the watcher. Within a batch, multiple writes
// collapse to one call carrying the final value.
func (v *Value[T]) Watch(fn func(T)) Cleanup {
	w := &watcher[T]{id: nextID(), v: v, fn: fn}
	v.base.subscribe(w)
	return func() { v.base.unsubscribe(w) }
}

// ID returns the unique identifier for this value.
func (v *Value[T]) ID() uint64 {
	return v.base.id
}

func (v *Value[T]) equals(a, b T) bool {
	if v.equal != nil {
		return v.equal(a, b)
	}
	return defaultEquals(a, b)
}

// watcher adapts a func(T) to the Observer interface, re-reading the value
// at notification time.
type watcher[T any] struct {
	id uint64
	v  *Value[T]
	fn func(T)
}

func (w *watcher[T]) MarkStale()         { w.fn(w.v.Get()) }
func (w *watcher[T]) ObserverID() uint64 { return w.id }

// defaultEquals uses == for the common comparable kinds and falls back to
// reflect.DeepEqual for slices, maps, and structs.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		return av == any(b).(int)
	case int64:
		return av == any(b).(int64)
	case uint64:
		return av == any(b).(uint64)
	case float64:
		return av == any(b).(float64)
	case string:
		return av == any(b).(string)
	case bool:
		return av == any(b).(bool)
	default:
		return reflect.DeepEqual(a, b)
	}
}
