package db

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrations embed.FS

func MigrationsFS() fs.FS {
	return migrations
}
