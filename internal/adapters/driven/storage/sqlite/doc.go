// Package sqlite provides a SQLite-backed implementation of the driven ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. A single database file serves:
//
//   - DocumentStore: namespaced JSON documents with optimistic versioning
//   - TaskQueue: a durable, polled task queue shared by worker processes
//   - DeadLetterStore: tasks that exhausted their retries
//   - ScheduleStore: cron schedules and their run history
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Queries
//
// Document selectors are compiled to SQL with squirrel. Field clauses use the
// JSON1 functions, so a value matches when its text form equals the clause
// value, and an array matches when any of its elements does.
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode, and retries statements that hit a busy database.
package sqlite
