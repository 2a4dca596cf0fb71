package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// DialectOf tells a SQLite DSN (sqlite:// or file: prefix, or a .db/.sqlite
// path) from a PostgreSQL one.
func DialectOf(dsn string) Dialect {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"):
		return SQLite
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return SQLite
	default:
		return Postgres
	}
}

// Open opens dsn with the pgx or sqlite driver depending on its dialect.
func Open(dsn string) (*sql.DB, error) {
	if DialectOf(dsn) == SQLite {
		db, err := sql.Open("sqlite", strings.TrimPrefix(dsn, "sqlite://"))
		if err != nil {
			return nil, err
		}
		// one writer; reads are done in a single load pass
		db.SetMaxOpenConns(1)
		return db, nil
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// rebind rewrites $N placeholders into SQLite's ?N form.
func rebind(d Dialect, q string) string {
	if d != SQLite {
		return q
	}
	var b strings.Builder
	b.Grow(len(q))
	for i := 0; i < len(q); i++ {
		if q[i] == '$' && i+1 < len(q) && q[i+1] >= '0' && q[i+1] <= '9' {
			b.WriteByte('?')
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, d Dialect, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	// Initialize to false
	for _, c := range cols {
		res[c] = false
	}
	var rows *sql.Rows
	var err error
	if d == SQLite {
		rows, err = db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?1)`, table)
	} else {
		q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = 'public' AND table_name = $1`
		rows, err = db.QueryContext(ctx, q, table)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if _, want := res[name]; want {
			res[name] = true
		}
	}
	return res, rows.Err()
}

// hasTable reports whether table exists in the public schema (or the SQLite file).
func hasTable(ctx context.Context, db *sql.DB, d Dialect, table string) (bool, error) {
	q := `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1`
	if d == SQLite {
		q = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?1`
	}
	var n int
	if err := db.QueryRowContext(ctx, q, table).Scan(&n); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}
