// Package migrations embeds the goose SQL migrations of the course schema,
// the audit log and the backup registry.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
