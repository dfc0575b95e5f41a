// Package server is the HTTP surface: the sync WebSocket endpoint, a REST
// surface for inspecting and mutating cache keys, health and metrics
// endpoints, and the snapshot lifecycle.
//
// A Server wraps a cache and a hub behind a chi router:
//
//	c := cache.New()
//	srv := server.New(server.Config{Addr: ":8080", Cache: c})
//	log.Fatal(srv.ListenAndServe())
//
// Handler returns the router for mounting inside a larger application.
// When a snapshot store is configured, New restores the latest snapshot
// and a background loop saves one every SnapshotEvery; Shutdown saves a
// final snapshot before stopping.
package server
