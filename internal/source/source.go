package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"transit-planner/internal/db"
	"transit-planner/internal/gtfs"
)

// Source locates the timetable: a GTFS zip, a SQLite import, or a PostgreSQL
// import (optionally the newest import for City on the cluster).
type Source struct {
	DatabaseURL string
	GTFSZip     string
	City        string
	// ServiceDateFilter keeps only trips running on the local service day.
	ServiceDateFilter bool
	Location          *time.Location
}

// Snapshot is a loaded feed together with the version it was loaded from.
type Snapshot struct {
	Feed    *gtfs.Feed
	Name    string
	Version string
	// ServiceDay is the local midnight trips were filtered for, or zero.
	ServiceDay time.Time
}

// Version identifies what Load would return at now without loading it. Two
// equal versions load the same feed.
func (s Source) Version(ctx context.Context, now time.Time) (version, name string, err error) {
	if s.GTFSZip != "" {
		fi, err := os.Stat(s.GTFSZip)
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("zip:%s@%d", s.GTFSZip, fi.ModTime().UnixNano()), s.GTFSZip, nil
	}
	name = "database"
	if s.City != "" {
		_, imp, err := db.ResolveCity(ctx, s.DatabaseURL, s.City)
		if err != nil {
			return "", "", err
		}
		name = imp.DBName
	}
	version = "db:" + name
	if day := s.serviceDay(now); !day.IsZero() {
		version += "@" + day.Format("2006-01-02")
	}
	return version, name, nil
}

// Load reads the feed valid at now.
func (s Source) Load(ctx context.Context, now time.Time) (*Snapshot, error) {
	if s.GTFSZip != "" {
		version, name, err := s.Version(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		feed, err := gtfs.Parse(s.GTFSZip)
		if err != nil {
			return nil, err
		}
		return &Snapshot{Feed: feed, Name: name, Version: version}, nil
	}

	dsn, name := s.DatabaseURL, "database"
	if s.City != "" {
		var imp db.Import
		var err error
		dsn, imp, err = db.ResolveCity(ctx, s.DatabaseURL, s.City)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		name = imp.DBName
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: db open: %v", ErrUnavailable, err)
	}
	defer conn.Close()
	if err := db.Ping(ctx, conn); err != nil {
		return nil, fmt.Errorf("%w: db ping: %v", ErrUnavailable, err)
	}

	day := s.serviceDay(now)
	feed, err := db.LoadFeed(ctx, conn, db.DialectOf(dsn), db.LoadOptions{ServiceDate: day})
	if err != nil {
		return nil, err
	}
	version := "db:" + name
	if !day.IsZero() {
		version += "@" + day.Format("2006-01-02")
	}
	return &Snapshot{Feed: feed, Name: name, Version: version, ServiceDay: day}, nil
}

// serviceDay is the zero time unless the service date filter applies to the
// configured database.
func (s Source) serviceDay(now time.Time) time.Time {
	if !s.ServiceDateFilter || s.GTFSZip != "" || db.DialectOf(s.DatabaseURL) != db.Postgres {
		return time.Time{}
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
