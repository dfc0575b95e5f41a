// Package cache implements the shared keyed store that keeps independent
// state bindings consistent: every consumer holding the same key observes
// the last-written snapshot for that key.
//
// A Cache is always an explicit instance handed to its consumers. The
// package deliberately exposes no process-global cache, so tests and
// embedders can run isolated instances side by side.
//
// Keys may be bound to a Go type via Bind; the binding is validated the
// first time a key meets a type and is sticky for the cache's lifetime.
// Untyped writes to a bound key are checked against the binding.
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTypeMismatch is the sentinel matched by errors.Is when a key is used
// with a type other than the one it was first bound to.
var ErrTypeMismatch = errors.New("optimist: cache type mismatch")

// TypeMismatchError reports the key and the two conflicting types.
type TypeMismatchError struct {
	Key   string
	Bound reflect.Type
	Got   reflect.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("optimist: cache key %q is bound to %s, got %s", e.Key, e.Bound, e.Got)
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// Event describes one change to a cache key.
type Event struct {
	// Key is the affected cache key.
	Key string

	// Value is the new value; nil when Deleted.
	Value any

	// Version is the per-key write counter after this change.
	// Versions give the total per-key order; under concurrent writers the
	// events themselves may be observed out of order.
	Version uint64

	// Deleted is true when the entry was removed.
	Deleted bool
}

// entry is one key's slot. Bindings and watchers outlive deletion: deleting
// clears the value, not the key's identity.
type entry struct {
	val       any
	present   bool
	bound     reflect.Type
	version   uint64
	writtenAt time.Time
	subs      []subscription
}

type subscription struct {
	id uint64
	fn func(Event)
}

// Cache is a mutex-guarded keyed store with per-key change notification.
// Writes are atomic at single-key granularity.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	allSubs []subscription
	done    chan struct{}
	closed  atomic.Bool

	ttl    time.Duration
	logger *slog.Logger

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64

	subID atomic.Uint64
}

// Option configures a Cache.
type Option func(*config)

type config struct {
	ttl             time.Duration
	janitorInterval time.Duration
	logger          *slog.Logger
}

// WithTTL makes entries expire after d without a write. The zero default
// never expires anything; eviction is this cache's concern, not the state
// container's.
func WithTTL(d time.Duration) Option {
	return func(c *config) {
		c.ttl = d
	}
}

// WithJanitorInterval sets how often expired entries are collected.
// Default: 1 minute. Only meaningful together with WithTTL.
func WithJanitorInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.janitorInterval = d
		}
	}
}

// WithLogger sets the logger used for write diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	cfg := &config{
		janitorInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
		ttl:     cfg.ttl,
		logger:  logger,
	}

	if c.ttl > 0 {
		go c.janitor(cfg.janitorInterval)
	}

	return c
}

// Get returns the value stored under key.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	var val any
	present := false
	if ok && e.present && !c.expired(e, time.Now()) {
		val = e.val
		present = true
	}
	c.mu.RUnlock()

	if present {
		c.hits.Add(1)
		return val, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set stores value under key and notifies watchers.
// Writing a bound key with an incompatible type is a programming error and
// panics; external input goes through SetChecked instead.
func (c *Cache) Set(key string, value any) {
	if err := c.SetChecked(key, value); err != nil {
		panic(err)
	}
}

// SetChecked stores value under key, returning a TypeMismatchError when the
// key is bound to an incompatible type. Used for writes whose value type is
// not under the caller's control.
func (c *Cache) SetChecked(key string, value any) error {
	c.mu.Lock()
	e := c.entry(key)

	if e.bound != nil {
		norm, err := conform(key, e.bound, value)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		value = norm
	}

	e.val = value
	e.present = true
	e.version++
	e.writtenAt = time.Now()
	ev := Event{Key: key, Value: value, Version: e.version}
	subs := c.watchersLocked(e)
	c.mu.Unlock()

	c.sets.Add(1)
	notify(subs, ev)
	return nil
}

// Delete removes the value stored under key. The key's type binding and
// watchers remain; watchers observe a Deleted event.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || !e.present {
		c.mu.Unlock()
		return
	}

	e.val = nil
	e.present = false
	e.version++
	e.writtenAt = time.Time{}
	ev := Event{Key: key, Version: e.version, Deleted: true}
	subs := c.watchersLocked(e)
	c.mu.Unlock()

	c.deletes.Add(1)
	notify(subs, ev)
}

// Version returns the per-key write counter, 0 for a key never written.
func (c *Cache) Version(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[key]; ok {
		return e.version
	}
	return 0
}

// Len returns the number of keys holding a value.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	now := time.Now()
	for _, e := range c.entries {
		if e.present && !c.expired(e, now) {
			n++
		}
	}
	return n
}

// Keys returns the keys currently holding a value, in no particular order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	now := time.Now()
	for k, e := range c.entries {
		if e.present && !c.expired(e, now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Range calls fn for every key holding a value until fn returns false.
// The iteration works on a snapshot; fn may safely use the cache.
func (c *Cache) Range(fn func(key string, value any, version uint64) bool) {
	c.mu.RLock()
	type kv struct {
		key     string
		val     any
		version uint64
	}
	snapshot := make([]kv, 0, len(c.entries))
	now := time.Now()
	for k, e := range c.entries {
		if e.present && !c.expired(e, now) {
			snapshot = append(snapshot, kv{k, e.val, e.version})
		}
	}
	c.mu.RUnlock()

	for _, it := range snapshot {
		if !fn(it.key, it.val, it.version) {
			return
		}
	}
}

// Subscribe registers fn for changes to one key. The returned function
// removes the watcher.
func (c *Cache) Subscribe(key string, fn func(Event)) func() {
	id := c.subID.Add(1)

	c.mu.Lock()
	e := c.entry(key)
	e.subs = append(e.subs, subscription{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.entries[key]; ok {
			e.subs = removeSub(e.subs, id)
		}
	}
}

// SubscribeAll registers fn for changes to every key.
func (c *Cache) SubscribeAll(fn func(Event)) func() {
	id := c.subID.Add(1)

	c.mu.Lock()
	c.allSubs = append(c.allSubs, subscription{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.allSubs = removeSub(c.allSubs, id)
	}
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Deletes int64
	Keys    int
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
		Keys:    c.Len(),
	}
}

// Close stops the expiry janitor. The cache itself remains usable; Close
// exists so deployments with a TTL shut down cleanly.
func (c *Cache) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)
}

// entry returns the slot for key, creating it if needed. Caller holds mu.
func (c *Cache) entry(key string) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// bind validates or records the type binding for key.
func (c *Cache) bind(key string, t reflect.Type) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(key)
	if e.bound == nil {
		e.bound = t
		return nil
	}
	if e.bound != t {
		return &TypeMismatchError{Key: key, Bound: e.bound, Got: t}
	}
	return nil
}

// watchersLocked snapshots the key-level and cache-level watcher lists.
// Caller holds mu; notification happens after unlock.
func (c *Cache) watchersLocked(e *entry) []subscription {
	if len(e.subs) == 0 && len(c.allSubs) == 0 {
		return nil
	}
	subs := make([]subscription, 0, len(e.subs)+len(c.allSubs))
	subs = append(subs, e.subs...)
	subs = append(subs, c.allSubs...)
	return subs
}

func notify(subs []subscription, ev Event) {
	for _, s := range subs {
		s.fn(ev)
	}
}

func removeSub(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			subs[i] = subs[len(subs)-1]
			return subs[:len(subs)-1]
		}
	}
	return subs
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return c.ttl > 0 && e.present && now.Sub(e.writtenAt) > c.ttl
}

// janitor periodically removes expired entries.
func (c *Cache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.done:
			return
		}
	}
}

// collect deletes every expired entry, with watcher notification.
func (c *Cache) collect() {
	c.mu.RLock()
	now := time.Now()
	var stale []string
	for k, e := range c.entries {
		if c.expired(e, now) {
			stale = append(stale, k)
		}
	}
	c.mu.RUnlock()

	for _, k := range stale {
		c.Delete(k)
	}
}

// conform checks value against the bound type for key and normalizes
// untyped nil to the binding's typed zero for nilable kinds.
func conform(key string, bound reflect.Type, value any) (any, error) {
	if value == nil {
		switch bound.Kind() {
		case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
			return reflect.Zero(bound).Interface(), nil
		default:
			return nil, &TypeMismatchError{Key: key, Bound: bound, Got: nil}
		}
	}

	got := reflect.TypeOf(value)
	if got == bound || got.AssignableTo(bound) {
		return value, nil
	}
	return nil, &TypeMismatchError{Key: key, Bound: bound, Got: got}
}
