// Package migrations embeds the schema shared by the postgres and sqlite backends.
package migrations

import "embed"

// FS holds the golang-migrate up/down files.
//
//go:embed *.sql
var FS embed.FS
