// Package database embeds the SQL migrations applied by goose.
package database

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
