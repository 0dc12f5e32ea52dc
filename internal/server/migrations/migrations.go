// Package migrations embeds the backbone's PostgreSQL schema migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
