// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Ingestion runs on background goroutines owned by IngestService;
// retrieval and assembly are synchronous and read-only.
package services
