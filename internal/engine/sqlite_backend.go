package engine

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var sqliteDialect = sqlDialect{
	name:              "sqlite",
	placeholder:       func(int) string { return "?" },
	autoIncrementType: "INTEGER",
	timestampType:     "DATETIME",
	booleanType:       "INTEGER",
}

// NewSQLiteStateBackend opens (creating if absent) a single-file SQLite
// database at path and returns a StateBackend backed by it. This is the
// default backend: a relational single file is sufficient for the scale
// this sync core runs at, and modernc.org/sqlite needs no cgo toolchain.
func NewSQLiteStateBackend(path string) (StateBackend, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("erpsync: open sqlite %s: %w", path, err)
	}
	// SQLite serializes writers internally; a single open connection avoids
	// SQLITE_BUSY from competing connections inside this same process.
	db.SetMaxOpenConns(1)
	return &sqlStateBackend{db: db, dialect: sqliteDialect}, nil
}
