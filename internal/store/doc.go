// Package store provides SQL-backed durable storage for worldforge: the
// append-only event log behind es.Repository and the storage-quota ledger
// behind quota.Gate.
//
// # Tables
//
//   - events: one row per committed event, PRIMARY KEY(aggregate_id, version)
//   - world_owners: world -> owning user
//   - storage_allocations: allocated bytes per owner
//   - storage_entries: current byte contribution per (owner, storage key)
//
// # Critical Patterns
//
// Optimistic concurrency:
//   - Append checks that the first version of each aggregate is stored max+1
//   - The primary key rejects a racing writer that passed the check
//   - Both surface as es.CodeVersionConflict and nothing from the batch is kept
//
// Deterministic reads:
//   - Events are read ORDER BY version ASC
//   - Payloads are canonical JSON and their hash is verified on load
//
// Quota ledger:
//   - Record replaces a key's contribution and re-checks the limit in the
//     same transaction (SERIALIZABLE on PostgreSQL)
//
// # Database Configuration
//
// SQLite (default):
//   - WAL mode, synchronous=NORMAL, busy_timeout=5000, foreign keys on
//   - One open connection; SQLite has a single writer anyway
//   - Schema version in PRAGMA user_version
//
// PostgreSQL (OpenPostgres):
//   - github.com/lib/pq, placeholders rebound from ? to $n
//   - Schema version in the schema_meta table
package store
