// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// BuildPipeline produces the persisted artifacts offline, QueryServer
// answers queries from them and IngestService keeps the metadata store
// aligned with the corpus.
package services
