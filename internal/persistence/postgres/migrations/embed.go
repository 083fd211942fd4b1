// Package migrations embeds the Postgres schema.
package migrations

import "embed"

// FS contains the ordered *.up.sql files.
//
//go:embed *.up.sql
var FS embed.FS
