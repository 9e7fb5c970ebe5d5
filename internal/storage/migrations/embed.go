package migrations

import "embed"

// FS contains the embedded progress store migrations, one directory per
// database.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
