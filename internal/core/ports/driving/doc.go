// Package driving declares what the CLI, the HTTP API and the MCP server may
// ask of ragctx: ingest and manage documents, search chunks, build a prompt
// context and edit settings.
//
// internal/core/services implements every interface here.
package driving
