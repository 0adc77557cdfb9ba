// Package migrations embeds the SQL schema for the registry SQLite store.
package migrations

import "embed"

// FS holds the ordered migration files.
//
//go:embed *.sql
var FS embed.FS
