// Package migrations embeds the goose SQL migrations so a deployment needs
// no migration files on disk. The files are embedded at the root of FS,
// matching the "." directory RunMigrations walks.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
