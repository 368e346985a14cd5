// Package migrations holds the SQL schema migrations, embedded into the binary
// and applied by database.RunMigrations at startup.
package migrations

import "embed"

// FS contains the numbered golang-migrate files (NNN_name.up.sql / .down.sql).
//
//go:embed *.sql
var FS embed.FS
