package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-planner/internal/gtfs"
)

var schema = []string{
	`CREATE TABLE stops (stop_id TEXT PRIMARY KEY, stop_name TEXT, stop_lat REAL, stop_lon REAL, location_type INTEGER, parent_station TEXT)`,
	`CREATE TABLE routes (route_id TEXT PRIMARY KEY, route_short_name TEXT, route_long_name TEXT, route_type INTEGER)`,
	`CREATE TABLE trips (trip_id TEXT PRIMARY KEY, route_id TEXT, service_id TEXT, trip_headsign TEXT)`,
	`CREATE TABLE stop_times (trip_id TEXT, stop_id TEXT, stop_sequence INTEGER, arrival_time TEXT, departure_time TEXT)`,
}

func seed(t *testing.T, withTransfers bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.db")
	db, err := Open("sqlite://" + path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	stmts := append([]string{}, schema...)
	stmts = append(stmts,
		`INSERT INTO stops VALUES ('S', 'Central', 41.0, 2.0, 1, NULL)`,
		`INSERT INTO stops VALUES ('A', 'Central P1', 41.0001, 2.0, 0, 'S')`,
		`INSERT INTO stops VALUES ('B', 'Market', 41.01, 2.01, NULL, NULL)`,
		`INSERT INTO routes VALUES ('R1', '1', 'Line One', 3)`,
		`INSERT INTO trips VALUES ('T1', 'R1', 'WK', 'Market')`,
		`INSERT INTO stop_times VALUES ('T1', 'A', 1, '08:00:00', '08:00:30')`,
		`INSERT INTO stop_times VALUES ('T1', 'B', 2, '24:10:00', NULL)`,
		`INSERT INTO stop_times VALUES ('T1', 'S', 3, NULL, NULL)`,
	)
	if withTransfers {
		stmts = append(stmts,
			`CREATE TABLE transfers (from_stop_id TEXT, to_stop_id TEXT, transfer_type INTEGER, min_transfer_time INTEGER)`,
			`INSERT INTO transfers VALUES ('A', 'B', 2, 180)`,
			`INSERT INTO transfers VALUES ('B', 'A', 3, NULL)`,
			`INSERT INTO transfers VALUES ('A', 'A', 2, 60)`,
		)
	}
	for _, s := range stmts {
		_, err := db.ExecContext(ctx, s)
		require.NoError(t, err, s)
	}
	return path
}

func TestLoadFeedSQLite(t *testing.T) {
	path := seed(t, true)
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Ping(context.Background(), db))

	// the date filter only applies to PostgreSQL imports
	feed, err := LoadFeed(context.Background(), db, SQLite, LoadOptions{ServiceDate: time.Now()})
	require.NoError(t, err)

	require.Len(t, feed.Stops, 3)
	byID := map[string]gtfs.Stop{}
	for _, s := range feed.Stops {
		byID[s.StopID] = s
	}
	assert.Equal(t, 1, byID["S"].LocationType)
	assert.Equal(t, "S", byID["A"].ParentStation)
	assert.Equal(t, 0, byID["B"].LocationType)
	assert.Equal(t, 41.01, byID["B"].StopLat)

	require.Len(t, feed.Routes, 1)
	assert.Equal(t, 3, feed.Routes[0].RouteType)
	require.Len(t, feed.Trips, 1)
	assert.Equal(t, "WK", feed.Trips[0].ServiceID)

	require.Len(t, feed.StopTimes, 2)
	byStop := map[string]gtfs.StopTime{}
	for _, st := range feed.StopTimes {
		byStop[st.StopID] = st
	}
	assert.Equal(t, 8*3600+30, byStop["A"].DepartureSec)
	assert.Equal(t, 24*3600+600, byStop["B"].ArrivalSec)
	assert.Equal(t, 24*3600+600, byStop["B"].DepartureSec)

	require.Len(t, feed.Transfers, 1)
	assert.Equal(t, gtfs.Transfer{FromStopID: "A", ToStopID: "B", Seconds: 180}, feed.Transfers[0])
}

func TestLoadFeedWithoutTransfers(t *testing.T) {
	db, err := Open(seed(t, false))
	require.NoError(t, err)
	defer db.Close()

	feed, err := LoadFeed(context.Background(), db, SQLite, LoadOptions{})
	require.NoError(t, err)
	assert.Empty(t, feed.Transfers)
	assert.Len(t, feed.StopTimes, 2)
}

func TestLoadFeedMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE stops (stop_id TEXT, stop_name TEXT)`)
	require.NoError(t, err)

	_, err = LoadFeed(context.Background(), db, SQLite, LoadOptions{})
	assert.ErrorContains(t, err, "missing expected columns")
}

func TestDialectOf(t *testing.T) {
	tests := []struct {
		dsn  string
		want Dialect
	}{
		{"postgres://u@h:5432/db", Postgres},
		{"host=localhost dbname=gtfs", Postgres},
		{"sqlite:///var/lib/feed.db", SQLite},
		{"file:feed?mode=ro", SQLite},
		{"/data/city.sqlite", SQLite},
		{"feed.DB", SQLite},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.want, DialectOf(tt.dsn))
		})
	}
	assert.Equal(t, "sqlite", SQLite.String())
	assert.Equal(t, "postgres", Postgres.String())
}

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = $1 AND y = $2 AND z = '$'`
	assert.Equal(t, q, rebind(Postgres, q))
	assert.Equal(t, `SELECT a FROM t WHERE x = ?1 AND y = ?2 AND z = '$'`, rebind(SQLite, q))
}

func TestParseLocationType(t *testing.T) {
	assert.Equal(t, 0, parseLocationType(""))
	assert.Equal(t, 1, parseLocationType("station"))
	assert.Equal(t, 1, parseLocationType("1"))
	assert.Equal(t, 2, parseLocationType("entrance_exit"))
	assert.Equal(t, 4, parseLocationType("boarding_area"))
	assert.Equal(t, 7, parseLocationType("7"))
	assert.Equal(t, 0, parseLocationType("weird"))
}

func TestWithDBName(t *testing.T) {
	got, err := WithDBName("postgres://user:pw@host:5432/postgres?sslmode=disable", "gtfs_madrid_2024")
	require.NoError(t, err)
	assert.Equal(t, "postgres://user:pw@host:5432/gtfs_madrid_2024?sslmode=disable", got)

	got, err = WithDBName("postgresql://host/old", "/new")
	require.NoError(t, err)
	assert.Equal(t, "postgresql://host/new", got)

	got, err = WithDBName("user@host:5432/old", "new")
	require.NoError(t, err)
	assert.Equal(t, "postgres://user@host:5432/new", got)

	for _, bad := range []string{"", "sqlite:///tmp/feed.db", "mysql://h/db"} {
		_, err = WithDBName(bad, "x")
		assert.Error(t, err, bad)
	}
}
