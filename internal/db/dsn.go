package db

import (
	"fmt"
	"net/url"
	"strings"
)

// WithDBName returns a DSN identical to the input but with the database path replaced.
// Supports postgres:// and postgresql:// schemes; SQLite DSNs have no database name to swap.
func WithDBName(dsn, database string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("empty DSN")
	}
	if DialectOf(dsn) == SQLite {
		return "", fmt.Errorf("cannot switch database of a sqlite DSN")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	return u.String(), nil
}
