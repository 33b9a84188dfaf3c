// Package domain defines the core business entities for tmsearch.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - CorpusLine: A line-aligned (source, target) pair at a fixed position
//   - Record: A translation-memory segment joined with its provenance
//   - VectorOutcome: The typed result of vectorising one corpus line
//   - Config: Engine configuration shared by the build and serving paths
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
