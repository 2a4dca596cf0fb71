package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"transit-planner/internal/natsapi"
	"transit-planner/internal/planner"
	"transit-planner/internal/routing"
	"transit-planner/internal/source"
	"transit-planner/internal/transfer"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run plans one journey and returns the process exit code: 0 for a journey,
// 1 for a planner error, 2 for bad usage or an unreachable source.
func run(args []string) int {
	fs := flag.NewFlagSet("route", flag.ContinueOnError)
	var (
		zipPath  = fs.String("zip", "", "GTFS zip to plan on")
		dsn      = fs.String("db", "", "database DSN (postgres:// or sqlite://) to plan on")
		from     = fs.String("from", "", "origin as lat,lon")
		to       = fs.String("to", "", "destination as lat,lon")
		at       = fs.String("at", time.Now().Format("15:04:05"), "departure time HH:MM[:SS]")
		strategy = fs.String("strategy", "csa", "csa, dijkstra or astar")
		mode     = fs.String("transfers", "both", "footpaths: explicit, synthesized or both")
		radius   = fs.Float64("walk-radius", 400, "radius for synthesized footpaths in meters")
		natsURL  = fs.String("nats", "", "ask a running planner at this NATS URL instead of loading a feed")
		subject  = fs.String("subject", "planner.route", "NATS subject of the running planner")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	req := planner.Request{Departure: *at, Strategy: *strategy}
	var err error
	if req.FromLat, req.FromLon, err = parseLatLon(*from); err != nil {
		log.Printf("-from: %v", err)
		return 2
	}
	if req.ToLat, req.ToLon, err = parseLatLon(*to); err != nil {
		log.Printf("-to: %v", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var resp planner.Response
	if *natsURL != "" {
		nc, err := natsapi.Connect(*natsURL, nil)
		if err != nil {
			log.Printf("nats error: %v", err)
			return 2
		}
		defer nc.Close()
		rctx, rcancel := context.WithTimeout(ctx, 10*time.Second)
		defer rcancel()
		if resp, err = natsapi.Request(rctx, nc, *subject, req); err != nil {
			log.Printf("nats request: %v", err)
			return 2
		}
	} else {
		if (*zipPath == "") == (*dsn == "") {
			log.Printf("exactly one of -zip or -db is required")
			return 2
		}
		snap, err := source.Source{GTFSZip: *zipPath, DatabaseURL: *dsn}.Load(ctx, time.Now())
		if err != nil {
			log.Printf("load: %v", err)
			return 2
		}
		p, err := planner.New(ctx, snap.Feed, snap.Name, planner.Options{
			Strategy: routing.Strategy(*strategy),
			Transfer: transfer.Options{Mode: transfer.Mode(*mode), MaxRadius: *radius},
		}, nil)
		if err != nil {
			log.Printf("build: %v", err)
			return 2
		}
		q, err := req.Query()
		if err == nil {
			resp = planner.NewResponse(p.FindRoute(q))
		} else {
			resp = planner.NewResponse(nil, err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		log.Printf("encode: %v", err)
		return 2
	}
	if resp.Error != nil {
		return 1
	}
	return 0
}

func parseLatLon(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want lat,lon, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}
