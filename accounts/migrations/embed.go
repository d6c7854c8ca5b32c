// Package migrations contains the embedded goose migrations for the Postgres account store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
