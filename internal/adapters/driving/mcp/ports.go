package mcp

import (
	"github.com/custodia-labs/ragctx/internal/core/domain"
	"github.com/custodia-labs/ragctx/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides ranked chunk retrieval.
	Search driving.SearchService

	// Context assembles retrieved chunks into a prompt context.
	Context driving.ContextService

	// Document exposes ingested documents as resources.
	Document driving.DocumentService

	// Defaults fill query fields a tool call leaves out.
	Defaults domain.SearchSettings
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	if p.Context == nil {
		return ErrMissingContextService
	}
	// Document is optional; without it no resources are registered.
	return nil
}
