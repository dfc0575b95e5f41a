// Package gid extracts the current goroutine's identifier.
//
// The ID is parsed from the runtime stack header and is an implementation
// detail of the Go runtime; it is used only for goroutine-local bookkeeping
// (batch scopes, loop-affinity checks) and must never leak into APIs or
// persisted state.
package gid

import "runtime"

// Current returns a unique identifier for the calling goroutine.
func Current() uint64 {
	// The stack trace starts with "goroutine <id> ".
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := 10; i < n; i++ { // skip "goroutine "
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
