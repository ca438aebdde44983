// Package migrations holds the Postgres schema. It requires the pgvector
// extension for the embedding column.
package migrations

import "embed"

// FS holds the schema scripts, applied in version order by the store.
//
//go:embed *.sql
var FS embed.FS
