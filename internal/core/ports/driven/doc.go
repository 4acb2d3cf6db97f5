// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentStore: Query-addressable document persistence (scan, fetch, bulk write)
//   - TaskQueue: Delivers tasks to workers and re-delivers them on retry
//   - Transformer: One step of a derivation chain
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - FailureSink: Receives exhausted tasks. Without it, exhaustion is only logged.
//   - DeadLetterStore: Lists and removes exhausted tasks for requeueing.
//   - ScheduleStore: Persists cron schedules. Without it, the scheduler is disabled.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or transformer package
package driven
