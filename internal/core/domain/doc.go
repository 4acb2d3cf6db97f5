// Package domain defines the core business entities for derivex.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A stored document with its field payload
//   - Batch: An ordered, bounded set of document ids
//   - Task: One unit of work carrying a batch and its transformer chain
//   - UpdateSet: Field changes accumulated across a transformer chain
//   - BatchOutcome: What happened to each document of a task
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
