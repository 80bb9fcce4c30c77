package migrations

import "embed"

// FS holds the SQL migrations in apply order.
//
//go:embed *.sql
var FS embed.FS
