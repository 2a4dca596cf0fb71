package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Import is one successful timetable import recorded in the meta database.
type Import struct {
	DBName     string
	ImportedAt time.Time
}

// LatestImport returns the most recent row of public.latest_successful_imports
// whose db_name contains city.
func LatestImport(ctx context.Context, meta *sql.DB, city string) (Import, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Import{}, fmt.Errorf("city is required")
	}
	// Fully qualified to the public schema (assumes we are connected to the 'postgres' database)
	q := `
SELECT db_name, imported_at
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var name sql.NullString
	var at sql.NullTime
	if err := meta.QueryRowContext(ctx, q, city).Scan(&name, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Import{}, fmt.Errorf("no database found for city like %q", city)
		}
		return Import{}, err
	}
	if !name.Valid || name.String == "" {
		return Import{}, fmt.Errorf("empty db_name for city like %q", city)
	}
	return Import{DBName: name.String, ImportedAt: at.Time}, nil
}

// ResolveCity connects to the cluster's meta database reachable from baseDSN
// and returns the DSN of the newest import for city.
func ResolveCity(ctx context.Context, baseDSN, city string) (string, Import, error) {
	rootDSN, err := WithDBName(baseDSN, "postgres")
	if err != nil {
		return "", Import{}, fmt.Errorf("invalid base DSN: %w", err)
	}
	meta, err := Open(rootDSN)
	if err != nil {
		return "", Import{}, fmt.Errorf("meta db open: %w", err)
	}
	defer meta.Close()
	if err := Ping(ctx, meta); err != nil {
		return "", Import{}, fmt.Errorf("meta db ping: %w", err)
	}
	imp, err := LatestImport(ctx, meta, city)
	if err != nil {
		return "", Import{}, fmt.Errorf("resolve latest import for city %q: %w", city, err)
	}
	dsn, err := WithDBName(baseDSN, imp.DBName)
	if err != nil {
		return "", Import{}, fmt.Errorf("compose DSN: %w", err)
	}
	return dsn, imp, nil
}
