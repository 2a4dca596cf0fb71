package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
)

// ErrMissingFile is returned when a required GTFS file is absent from the archive.
var ErrMissingFile = errors.New("missing GTFS file")

// Parse reads a GTFS zip file. stops.txt and stop_times.txt are required;
// routes.txt, trips.txt and transfers.txt are optional.
func Parse(zipPath string) (*Feed, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	files := make(map[string]*zip.File)
	for _, f := range r.File {
		files[strings.ToLower(f.Name)] = f
	}

	feed := &Feed{}
	for _, name := range []string{"stops.txt", "stop_times.txt"} {
		if _, ok := files[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingFile, name)
		}
	}

	if err := readCSV(files["stops.txt"], func(row func(string) string) error {
		lat, err := strconv.ParseFloat(row("stop_lat"), 64)
		if err != nil {
			return fmt.Errorf("stop %q: bad stop_lat: %w", row("stop_id"), err)
		}
		lon, err := strconv.ParseFloat(row("stop_lon"), 64)
		if err != nil {
			return fmt.Errorf("stop %q: bad stop_lon: %w", row("stop_id"), err)
		}
		locType, _ := strconv.Atoi(row("location_type"))
		feed.Stops = append(feed.Stops, Stop{
			StopID:        row("stop_id"),
			StopName:      row("stop_name"),
			StopLat:       lat,
			StopLon:       lon,
			LocationType:  locType,
			ParentStation: row("parent_station"),
		})
		return nil
	}); err != nil {
		return nil, fmt.Errorf("stops.txt: %w", err)
	}

	if f, ok := files["routes.txt"]; ok {
		if err := readCSV(f, func(row func(string) string) error {
			routeType, _ := strconv.Atoi(row("route_type"))
			feed.Routes = append(feed.Routes, Route{
				RouteID:        row("route_id"),
				RouteShortName: row("route_short_name"),
				RouteLongName:  row("route_long_name"),
				RouteType:      routeType,
			})
			return nil
		}); err != nil {
			return nil, fmt.Errorf("routes.txt: %w", err)
		}
	}

	if f, ok := files["trips.txt"]; ok {
		if err := readCSV(f, func(row func(string) string) error {
			feed.Trips = append(feed.Trips, Trip{
				TripID:       row("trip_id"),
				RouteID:      row("route_id"),
				ServiceID:    row("service_id"),
				TripHeadsign: row("trip_headsign"),
			})
			return nil
		}); err != nil {
			return nil, fmt.Errorf("trips.txt: %w", err)
		}
	}

	if err := readCSV(files["stop_times.txt"], func(row func(string) string) error {
		seq, err := strconv.Atoi(row("stop_sequence"))
		if err != nil {
			return fmt.Errorf("trip %q: bad stop_sequence: %w", row("trip_id"), err)
		}
		arr, dep := row("arrival_time"), row("departure_time")
		// Untimed intermediate stops carry no schedule and cannot form connections.
		if arr == "" && dep == "" {
			return nil
		}
		if arr == "" {
			arr = dep
		}
		if dep == "" {
			dep = arr
		}
		arrSec, err := ParseDaySeconds(arr)
		if err != nil {
			return fmt.Errorf("trip %q: %w", row("trip_id"), err)
		}
		depSec, err := ParseDaySeconds(dep)
		if err != nil {
			return fmt.Errorf("trip %q: %w", row("trip_id"), err)
		}
		feed.StopTimes = append(feed.StopTimes, StopTime{
			TripID:       row("trip_id"),
			StopID:       row("stop_id"),
			StopSequence: seq,
			ArrivalSec:   arrSec,
			DepartureSec: depSec,
		})
		return nil
	}); err != nil {
		return nil, fmt.Errorf("stop_times.txt: %w", err)
	}

	if f, ok := files["transfers.txt"]; ok {
		if err := readCSV(f, func(row func(string) string) error {
			// transfer_type 3 means the transfer is not possible.
			if row("transfer_type") == "3" {
				return nil
			}
			from, to := row("from_stop_id"), row("to_stop_id")
			if from == "" || to == "" || from == to {
				return nil
			}
			secs, _ := strconv.Atoi(row("min_transfer_time"))
			feed.Transfers = append(feed.Transfers, Transfer{
				FromStopID: from,
				ToStopID:   to,
				Seconds:    secs,
			})
			return nil
		}); err != nil {
			return nil, fmt.Errorf("transfers.txt: %w", err)
		}
	}

	log.Printf("GTFS parsed: %d stops, %d routes, %d trips, %d stop_times, %d transfers",
		len(feed.Stops), len(feed.Routes), len(feed.Trips), len(feed.StopTimes), len(feed.Transfers))

	return feed, nil
}

// readCSV streams the rows of f, handing each to fn through a column lookup.
func readCSV(f *zip.File, fn func(row func(string) string) error) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return err
	}
	idx := makeIndex(header)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(func(col string) string { return getField(record, idx, col) }); err != nil {
			return err
		}
	}
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		// strip a UTF-8 BOM on the first column
		h = strings.TrimPrefix(strings.TrimSpace(h), "\uFEFF")
		idx[strings.ToLower(h)] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
