// Package migrations embeds the sqlite schema used by internal/persistence/sqlite.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
