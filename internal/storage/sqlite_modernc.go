//go:build sqlite && !cgo_sqlite3

package storage

import (
	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"
