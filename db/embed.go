// Package db holds the embedded goose migration scripts so the binary can
// initialize or upgrade a store file from any working directory.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
