// Package migrations embeds the Postgres schema migrations of the local catalog
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files
//
//go:embed *.sql
var FS embed.FS
