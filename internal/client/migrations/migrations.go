// Package migrations embeds the SQLite schema of the per-account local store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
