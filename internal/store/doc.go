// Package store persists stream records on SQLite.
//
// A record is the durable footprint of an accepted stream: one row per
// (dapp, stream) holding the last accepted tip and the content snapshot
// at that tip. The package implements the stream.RecordStore contract:
//
//   - Load: fetch the record for a stream, NOT_FOUND when absent
//   - Save: upsert the whole row; this write is the durability boundary
//     of commit acceptance
//
// Save is last-writer-wins. Acceptance is serialized per stream by the
// caller, so concurrent writers racing on the same row are not expected;
// expected-previous-tip concurrency control is a known follow-up.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Schema is embedded via go:embed and versioned with PRAGMA user_version.
package store
