// Package migrations embeds the SQL schema so binaries can migrate without a checkout.
package migrations

import "embed"

// FS holds every NNNNNN_name.{up,down}.sql pair in this directory.
//
//go:embed *.sql
var FS embed.FS
