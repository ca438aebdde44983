// Package mcp provides an MCP (Model Context Protocol) server adapter for ragctx.
// It lets AI assistants retrieve document context for their prompts.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")

// ErrMissingContextService is returned when the context service is not provided.
var ErrMissingContextService = errors.New("mcp: context service is required")
