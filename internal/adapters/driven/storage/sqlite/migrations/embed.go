// Package migrations holds the SQLite schema for the document, chunk and
// embedding tables. Vectors are stored as little-endian float32 blobs.
package migrations

import "embed"

// FS holds the schema scripts, applied in version order by the store.
//
//go:embed *.sql
var FS embed.FS
