package engine

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

var postgresDialect = sqlDialect{
	name:              "postgres",
	placeholder:       func(n int) string { return fmt.Sprintf("$%d", n) },
	autoIncrementType: "SERIAL",
	timestampType:     "TIMESTAMPTZ",
	booleanType:       "BOOLEAN",
}

// NewPostgresStateBackend opens a connection pool against dsn (a standard
// postgres:// connection string) and returns a StateBackend backed by it.
// This is the multi-host alternative to the sqlite:// default, for
// deployments where several erpsync processes share one state store.
func NewPostgresStateBackend(dsn string) (StateBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("erpsync: open postgres: %w", err)
	}
	return &sqlStateBackend{db: db, dialect: postgresDialect}, nil
}
