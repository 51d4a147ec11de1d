// Package migrations embeds the SQL schema so the API binary can bring a
// fresh database up to date at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
