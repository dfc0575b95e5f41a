// Package persist saves and restores cache snapshots.
//
// A Snapshot is a point-in-time JSON capture of every cache entry. The
// server captures one periodically and on graceful shutdown, and
// restores the latest on boot, so synced state survives restarts.
//
// The Store interface has four backends:
//
//   - MemoryStore: in-process, optionally with retained history
//   - SQLStore: database/sql with PostgreSQL, MySQL, and SQLite dialects
//   - RedisStore: any go-redis compatible client
//   - S3Store: aws-sdk-go-v2 S3 bucket object
//
// Backends store the Encode output verbatim; the format carries its own
// version so decoders can reject snapshots written by incompatible
// builds.
//
// Per-key versions are captured for diagnostics only. Restore writes
// values back as raw JSON and lets the cache assign fresh versions;
// version counters are meaningful within one process lifetime, not
// across restarts.
package persist
