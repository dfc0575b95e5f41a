package cache

import "reflect"

// Entry is a typed handle on one cache key. All values flowing through an
// Entry are checked against the key's first-bound type, so independent
// consumers sharing the key cannot disagree about what it holds.
type Entry[T any] struct {
	c   *Cache
	key string
}

// Bind associates key with type T. The first bind records the type; any
// later bind (or untyped checked write) with a different type fails with a
// TypeMismatchError, matchable via errors.Is(err, ErrTypeMismatch).
func Bind[T any](c *Cache, key string) (*Entry[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if err := c.bind(key, t); err != nil {
		return nil, err
	}
	return &Entry[T]{c: c, key: key}, nil
}

// MustBind is Bind for wiring code where a mismatch is a programming error.
func MustBind[T any](c *Cache, key string) *Entry[T] {
	e, err := Bind[T](c, key)
	if err != nil {
		panic(err)
	}
	return e
}

// Key returns the cache key this entry is bound to.
func (e *Entry[T]) Key() string {
	return e.key
}

// Get returns the key's current value.
func (e *Entry[T]) Get() (T, bool) {
	val, ok := e.c.Get(e.key)
	if !ok {
		var zero T
		return zero, false
	}
	// The binding guarantees assignability; a nil interface value still
	// needs the zero fallback because it carries no dynamic type.
	t, ok := val.(T)
	if !ok {
		var zero T
		return zero, val == nil
	}
	return t, true
}

// Set stores a new value under the key.
func (e *Entry[T]) Set(v T) {
	e.c.Set(e.key, v)
}

// Delete removes the key's value.
func (e *Entry[T]) Delete() {
	e.c.Delete(e.key)
}

// Version returns the key's write counter.
func (e *Entry[T]) Version() uint64 {
	return e.c.Version(e.key)
}

// Watch registers fn for changes to the key. fn receives the new value and
// whether the key currently holds one (false on deletion). The returned
// function removes the watcher.
func (e *Entry[T]) Watch(fn func(value T, present bool)) func() {
	return e.c.Subscribe(e.key, func(ev Event) {
		if ev.Deleted {
			var zero T
			fn(zero, false)
			return
		}
		if t, ok := ev.Value.(T); ok {
			fn(t, true)
		}
	})
}
