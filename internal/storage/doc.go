// Package storage persists the set of chats subscribed to scheduled reports.
//
// Drivers implement the small Store contract (Load/Save). Subscribers layers
// the idempotent subscribe/unsubscribe operations on top of any driver:
//   - "file": a single JSON document {"subscribers":[...]}, rewritten atomically
//   - "sqlite": an embedded SQLite database (modernc.org/sqlite, no cgo)
//   - "redis": a Redis set, for hosts without a persistent disk
package storage
