// Package migrations embeds the control-plane schema.
package migrations

import "embed"

// FS holds the .sql migration files.
//
//go:embed *.sql
var FS embed.FS
