// Package migrations embeds the Postgres schema for the facility directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
