package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"transit-planner/internal/gtfs"
)

// LoadOptions controls which part of an imported timetable is loaded.
type LoadOptions struct {
	// ServiceDate, when non-zero, keeps only trips whose service runs that day.
	// Only PostgreSQL imports carry typed calendar columns; SQLite loads every trip.
	ServiceDate time.Time
}

// LoadFeed reads stops, routes, trips, stop times and transfers from an
// imported GTFS database.
func LoadFeed(ctx context.Context, db *sql.DB, d Dialect, opts LoadOptions) (*gtfs.Feed, error) {
	started := time.Now()
	feed := &gtfs.Feed{}
	var err error

	if feed.Stops, err = fetchStops(ctx, db, d); err != nil {
		return nil, err
	}
	if feed.Routes, err = fetchRoutes(ctx, db, d); err != nil {
		return nil, err
	}

	var active map[string]bool
	if !opts.ServiceDate.IsZero() && d == Postgres {
		ids, err := fetchActiveServiceIDs(ctx, db, opts.ServiceDate)
		if err != nil {
			return nil, err
		}
		active = make(map[string]bool, len(ids))
		for _, id := range ids {
			active[id] = true
		}
		if len(ids) == 0 {
			log.Printf("no active services for %s", opts.ServiceDate.Format("2006-01-02"))
		}
	}
	if feed.Trips, err = fetchTrips(ctx, db, d, active); err != nil {
		return nil, err
	}

	var keep map[string]bool
	if active != nil {
		keep = make(map[string]bool, len(feed.Trips))
		for _, t := range feed.Trips {
			keep[t.TripID] = true
		}
	}
	if feed.StopTimes, err = fetchStopTimes(ctx, db, d, keep); err != nil {
		return nil, err
	}
	if feed.Transfers, err = fetchTransfers(ctx, db, d); err != nil {
		return nil, err
	}

	log.Printf("loaded feed from %s: %d stops, %d routes, %d trips, %d stop_times, %d transfers in %s",
		d, len(feed.Stops), len(feed.Routes), len(feed.Trips), len(feed.StopTimes), len(feed.Transfers),
		time.Since(started).Round(time.Millisecond))
	return feed, nil
}

func fetchStops(ctx context.Context, db *sql.DB, d Dialect) ([]gtfs.Stop, error) {
	// Prefer stop_lat/stop_lon, but support PostGIS stop_loc geography as fallback
	cols, err := hasColumns(ctx, db, d, "stops", "stop_lat", "stop_lon", "stop_loc")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var latlon string
	switch {
	case cols["stop_lat"] && cols["stop_lon"]:
		latlon = `COALESCE(stop_lat, 0), COALESCE(stop_lon, 0)`
	case cols["stop_loc"] && d == Postgres:
		latlon = `COALESCE(ST_Y(stop_loc::geometry), 0), COALESCE(ST_X(stop_loc::geometry), 0)`
	default:
		return nil, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
	}
	q := `SELECT stop_id, COALESCE(stop_name, ''), ` + latlon + `,
             COALESCE(CAST(location_type AS TEXT), ''), COALESCE(parent_station, '')
          FROM stops`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()

	var stops []gtfs.Stop
	for rows.Next() {
		var s gtfs.Stop
		var lt string
		if err := rows.Scan(&s.StopID, &s.StopName, &s.StopLat, &s.StopLon, &lt, &s.ParentStation); err != nil {
			return nil, err
		}
		s.LocationType = parseLocationType(lt)
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

func fetchRoutes(ctx context.Context, db *sql.DB, d Dialect) ([]gtfs.Route, error) {
	q := `SELECT route_id, COALESCE(route_short_name, ''), COALESCE(route_long_name, ''),
             COALESCE(CAST(route_type AS TEXT), '')
          FROM routes`
	rows, err := db.QueryContext(ctx, rebind(d, q))
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()

	var routes []gtfs.Route
	for rows.Next() {
		var r gtfs.Route
		var rt string
		if err := rows.Scan(&r.RouteID, &r.RouteShortName, &r.RouteLongName, &rt); err != nil {
			return nil, err
		}
		r.RouteType, _ = strconv.Atoi(rt)
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// fetchTrips loads trips, restricted to the active service ids when active is non-nil.
func fetchTrips(ctx context.Context, db *sql.DB, d Dialect, active map[string]bool) ([]gtfs.Trip, error) {
	q := `SELECT trip_id, route_id, service_id, COALESCE(trip_headsign, '') FROM trips`
	rows, err := db.QueryContext(ctx, rebind(d, q))
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()

	var trips []gtfs.Trip
	for rows.Next() {
		var t gtfs.Trip
		if err := rows.Scan(&t.TripID, &t.RouteID, &t.ServiceID, &t.TripHeadsign); err != nil {
			return nil, err
		}
		if active != nil && !active[t.ServiceID] {
			continue
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// fetchStopTimes loads timed stop visits, restricted to keep when it is non-nil.
func fetchStopTimes(ctx context.Context, db *sql.DB, d Dialect, keep map[string]bool) ([]gtfs.StopTime, error) {
	// arrival_time and departure_time may be stored as text or interval
	q := `SELECT trip_id, stop_id, stop_sequence,
             COALESCE(CAST(arrival_time AS TEXT), ''),
             COALESCE(CAST(departure_time AS TEXT), '')
          FROM stop_times`
	rows, err := db.QueryContext(ctx, rebind(d, q))
	if err != nil {
		return nil, fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()

	var sts []gtfs.StopTime
	for rows.Next() {
		var st gtfs.StopTime
		var arr, dep string
		if err := rows.Scan(&st.TripID, &st.StopID, &st.StopSequence, &arr, &dep); err != nil {
			return nil, err
		}
		if keep != nil && !keep[st.TripID] {
			continue
		}
		if arr == "" && dep == "" {
			continue
		}
		if arr == "" {
			arr = dep
		}
		if dep == "" {
			dep = arr
		}
		if st.ArrivalSec, err = gtfs.ParseDaySeconds(arr); err != nil {
			return nil, fmt.Errorf("trip %q seq %d: %w", st.TripID, st.StopSequence, err)
		}
		if st.DepartureSec, err = gtfs.ParseDaySeconds(dep); err != nil {
			return nil, fmt.Errorf("trip %q seq %d: %w", st.TripID, st.StopSequence, err)
		}
		sts = append(sts, st)
	}
	return sts, rows.Err()
}

func fetchTransfers(ctx context.Context, db *sql.DB, d Dialect) ([]gtfs.Transfer, error) {
	ok, err := hasTable(ctx, db, d, "transfers")
	if err != nil || !ok {
		return nil, err
	}
	q := `SELECT COALESCE(from_stop_id, ''), COALESCE(to_stop_id, ''),
             COALESCE(CAST(transfer_type AS TEXT), ''), COALESCE(min_transfer_time, 0)
          FROM transfers`
	rows, err := db.QueryContext(ctx, rebind(d, q))
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var out []gtfs.Transfer
	for rows.Next() {
		var t gtfs.Transfer
		var tt string
		if err := rows.Scan(&t.FromStopID, &t.ToStopID, &tt, &t.Seconds); err != nil {
			return nil, err
		}
		// type 3 (not_possible) forbids the transfer
		if tt == "3" || tt == "not_possible" {
			continue
		}
		if t.FromStopID == "" || t.ToStopID == "" || t.FromStopID == t.ToStopID {
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func fetchActiveServiceIDs(ctx context.Context, db *sql.DB, day time.Time) ([]string, error) {
	date := day.Format("2006-01-02")
	dow := int(day.Weekday()) // 0=Sunday

	// calendar has booleans (0/1). calendar_dates has exception_type (1 add, 2 remove)
	// Assume these columns are of standard types created by postgis-gtfs-importer.
	q := `
WITH base AS (
  SELECT service_id
  FROM calendar
  WHERE start_date <= $1::date AND end_date >= $1::date
    AND (
      ($2 = 0 AND (sunday::text IN ('1','t','true','available'))) OR
      ($2 = 1 AND (monday::text IN ('1','t','true','available'))) OR
      ($2 = 2 AND (tuesday::text IN ('1','t','true','available'))) OR
      ($2 = 3 AND (wednesday::text IN ('1','t','true','available'))) OR
      ($2 = 4 AND (thursday::text IN ('1','t','true','available'))) OR
      ($2 = 5 AND (friday::text IN ('1','t','true','available'))) OR
      ($2 = 6 AND (saturday::text IN ('1','t','true','available')))
    )
), add_exc AS (
  SELECT service_id FROM calendar_dates WHERE date = $1::date AND (exception_type::text IN ('1','added'))
), rm_exc AS (
  SELECT service_id FROM calendar_dates WHERE date = $1::date AND (exception_type::text IN ('2','removed'))
), merged AS (
  SELECT service_id FROM base
  UNION
  SELECT service_id FROM add_exc
)
SELECT DISTINCT service_id FROM merged
WHERE service_id NOT IN (SELECT service_id FROM rm_exc)
`

	rows, err := db.QueryContext(ctx, q, date, dow)
	if err != nil {
		return nil, fmt.Errorf("query active services: %w", err)
	}
	defer rows.Close()
	var svc []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		svc = append(svc, s)
	}
	return svc, rows.Err()
}

// parseLocationType accepts numeric GTFS codes and the enum labels used by
// postgis-gtfs-importer.
func parseLocationType(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "stop", "platform":
		return 0
	case "1", "station":
		return 1
	case "2", "entrance_exit", "entrance":
		return 2
	case "3", "node":
		return 3
	case "4", "boarding_area":
		return 4
	default:
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		return 0
	}
}
