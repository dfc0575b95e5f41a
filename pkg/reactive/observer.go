package reactive

// Observer is anything that can be notified when an observed value changes.
type Observer interface {
	// MarkStale notifies the observer that a value it watches has changed.
	// The observer re-reads whatever it needs; no payload is delivered, so a
	// run of changes may legitimately collapse into one notification.
	MarkStale()

	// ObserverID returns a unique identifier for this observer.
	// Used for deduplication when a batch flushes.
	ObserverID() uint64
}

// Cleanup is a function that releases a subscription or other resource.
type Cleanup func()
