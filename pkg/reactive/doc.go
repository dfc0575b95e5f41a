// Package reactive provides the observable primitives underneath the
// optimistic state container: a mutex-guarded Value[T] with explicit
// subscription, batched notification with per-observer deduplication, and a
// Scope ownership tree for deterministic teardown.
//
// There is no implicit dependency tracking here. Consumers subscribe
// explicitly via Value.Watch or by implementing Observer; a notification
// means "re-read the value", and an observer that reads inside MarkStale
// always sees the latest write. Combined with Batch, this yields
// last-write-wins observation: several writes inside one batch collapse to a
// single notification carrying the final value.
package reactive
