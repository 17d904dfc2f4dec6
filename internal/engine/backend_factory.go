package engine

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildStateBackendFromDSN dispatches on a DSN's scheme to construct the
// StateBackend it names:
//
//	memory://                 in-process map, lost on exit
//	sqlite://path  or file:path  single-file SQLite database
//	postgres://...                Postgres connection pool
func BuildStateBackendFromDSN(dsn string) (StateBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemoryStateBackend(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("erpsync: parse state backend dsn: %w", err)
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	switch scheme {
	case "memory", "mem", "inmem":
		return NewMemoryStateBackend(), nil
	case "sqlite":
		path, err := dsnPath(parsed, dsn)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStateBackend(path)
	case "file", "":
		path, err := dsnPath(parsed, dsn)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStateBackend(path)
	case "postgres", "postgresql":
		return NewPostgresStateBackend(dsn)
	default:
		return nil, fmt.Errorf("erpsync: unsupported state backend scheme %q", scheme)
	}
}

// dsnPath extracts a filesystem path from a file-like DSN, accepting both
// "sqlite:///abs/path.db" (Opaque/Path form) and the bare "./rel/path.db"
// shorthand with no scheme at all.
func dsnPath(parsed *url.URL, original string) (string, error) {
	if parsed.Opaque != "" {
		return parsed.Opaque, nil
	}
	if parsed.Path != "" {
		if parsed.Host != "" {
			return parsed.Host + parsed.Path, nil
		}
		return parsed.Path, nil
	}
	if parsed.Scheme == "" {
		return original, nil
	}
	return "", fmt.Errorf("erpsync: dsn %q has no path component", original)
}
