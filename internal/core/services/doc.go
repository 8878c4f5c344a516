// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The ingestion pipeline is the sole writer of structural data (graph,
// chunks, cross-index); the query pipeline is read-only on those stores.
package services
