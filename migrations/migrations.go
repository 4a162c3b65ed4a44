// Package migrations embeds the archive schema migrations for goose.
//
// Migration files follow the naming convention: YYYYMMDDHHMMSS_description.sql
// They are applied in order when the message store starts.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
