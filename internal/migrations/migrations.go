// Package migrations embeds the goose schema migrations for the catalog.
// Separate directories are kept per engine, mirroring the dialect
// differences (AUTOINCREMENT vs BIGSERIAL, BLOB vs BYTEA).
package migrations

import "embed"

//go:embed sqlite/*.sql
var SQLite embed.FS

//go:embed postgres/*.sql
var Postgres embed.FS
