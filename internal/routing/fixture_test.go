package routing

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"transit-planner/internal/gtfs"
	"transit-planner/internal/network"
	"transit-planner/internal/transfer"
)

type fixture struct {
	net  *network.Network
	idx  *network.ConnectionIndex
	walk *transfer.Service
}

func newFixture(t *testing.T, feed *gtfs.Feed, opts transfer.Options) fixture {
	t.Helper()
	net, err := network.Build(feed)
	require.NoError(t, err)
	walk, err := transfer.Build(context.Background(), net, opts)
	require.NoError(t, err)
	return fixture{net: net, idx: network.NewConnectionIndex(net), walk: walk}
}

func (f fixture) engines(opts Options) []Engine {
	return []Engine{
		NewConnectionScan(f.net, f.idx, f.walk, opts),
		NewLabelSetting(f.net, f.idx, f.walk, opts, false),
		NewLabelSetting(f.net, f.idx, f.walk, opts, true),
	}
}

func (f fixture) stop(t *testing.T, id string) int {
	t.Helper()
	s, err := f.net.Stop(id)
	require.NoError(t, err)
	return s.Index
}

// line stops are ~1.1 km apart heading north.
func lineStops(ids ...string) []gtfs.Stop {
	stops := make([]gtfs.Stop, len(ids))
	for i, id := range ids {
		stops[i] = gtfs.Stop{StopID: id, StopName: "Stop " + id, StopLat: 41.0 + 0.01*float64(i), StopLon: 2.0}
	}
	return stops
}

type visit struct {
	stop     string
	arr, dep int
}

func addTrip(f *gtfs.Feed, tripID, routeID string, visits ...visit) {
	f.Trips = append(f.Trips, gtfs.Trip{TripID: tripID, RouteID: routeID, TripHeadsign: visits[len(visits)-1].stop})
	for i, v := range visits {
		f.StopTimes = append(f.StopTimes, gtfs.StopTime{
			TripID: tripID, StopID: v.stop, StopSequence: i + 1, ArrivalSec: v.arr, DepartureSec: v.dep,
		})
	}
}

// randomFeed builds a reproducible network of stops scattered over ~2 km and
// trips with strictly positive hop durations.
func randomFeed(seed uint64, numStops, numTrips int) *gtfs.Feed {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return buildRandomFeed(r, numStops, numTrips, func() (hop, dwell int) {
		return 60 + r.IntN(300), r.IntN(60)
	}, func() int { return 6*3600 + r.IntN(4*3600) })
}

// minuteFeed is randomFeed with minute resolution times: many hops take zero
// seconds and many trips share departure instants.
func minuteFeed(seed uint64, numStops, numTrips int) *gtfs.Feed {
	r := rand.New(rand.NewPCG(seed, seed^0x51ed27))
	return buildRandomFeed(r, numStops, numTrips, func() (hop, dwell int) {
		return 60 * r.IntN(3), 60 * r.IntN(2)
	}, func() int { return 6*3600 + 60*r.IntN(45) })
}

func buildRandomFeed(r *rand.Rand, numStops, numTrips int, step func() (hop, dwell int), start func() int) *gtfs.Feed {
	f := &gtfs.Feed{}
	for i := 0; i < numStops; i++ {
		f.Stops = append(f.Stops, gtfs.Stop{
			StopID:  fmt.Sprintf("S%02d", i),
			StopLat: 41.0 + r.Float64()*0.02,
			StopLon: 2.0 + r.Float64()*0.02,
		})
	}
	for i := 0; i < numTrips; i++ {
		n := 3 + r.IntN(4)
		perm := r.Perm(numStops)[:n]
		t := start()
		visits := make([]visit, 0, n)
		for k, s := range perm {
			hop, dwell := step()
			if k > 0 {
				t += hop
			}
			visits = append(visits, visit{stop: f.Stops[s].StopID, arr: t, dep: t + dwell})
			t += dwell
		}
		addTrip(f, fmt.Sprintf("T%03d", i), fmt.Sprintf("R%d", i%5), visits...)
	}
	for i := 0; i < numStops/3; i++ {
		a, b := r.IntN(numStops), r.IntN(numStops)
		f.Transfers = append(f.Transfers, gtfs.Transfer{
			FromStopID: f.Stops[a].StopID, ToStopID: f.Stops[b].StopID, Seconds: 30 + r.IntN(600),
		})
	}
	return f
}

// replay walks a journey leg by leg from its departure and returns the time
// the traveler ends up at the last place.
func replay(t *testing.T, j *Journey) network.ServiceTime {
	t.Helper()
	at := j.Departure
	for i, leg := range j.Legs {
		require.GreaterOrEqual(t, leg.Start, at, "leg %d starts before the traveler arrives", i)
		if leg.Mode == ModeWalk {
			require.Equal(t, at, leg.Start, "walk %d does not start on arrival", i)
		}
		if i > 0 {
			require.Equal(t, j.Legs[i-1].To.StopID, leg.From.StopID, "leg %d is not connected", i)
		}
		at = leg.End()
	}
	return at
}
