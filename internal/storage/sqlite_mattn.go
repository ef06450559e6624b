//go:build sqlite && cgo_sqlite3

package storage

import (
	_ "github.com/mattn/go-sqlite3"
)

const sqliteDriverName = "sqlite3"
