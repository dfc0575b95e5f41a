// Package hub fans cache changes out to WebSocket clients and applies
// client writes back to the cache.
//
// A Hub owns a single cache-wide subscription. Every Set or Delete on the
// cache becomes one encoded state or gone frame, delivered to the sessions
// subscribed to the affected key. Client frames (sub, unsub, set, del, ping)
// are decoded on the session's read loop and dispatched by the hub; replies
// and fanout frames share a per-session buffered send channel drained by the
// write loop.
//
// Delivery is best effort: a session whose send buffer is full drops the
// frame and logs a warning rather than stalling the writer. Clients recover
// by re-subscribing, which always returns the current state. Write ordering
// per key follows cache version order, so a slow consumer may miss
// intermediate states but never observes them out of order.
package hub
