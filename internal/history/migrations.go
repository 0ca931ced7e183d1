package history

import "embed"

// EmbeddedMigrations contains all SQL migration files embedded into the binary.
// The migrations are loaded at compile time from the migrations/ subdirectory.
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
