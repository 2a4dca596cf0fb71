package routing

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-planner/internal/geo"
	"transit-planner/internal/gtfs"
	"transit-planner/internal/network"
	"transit-planner/internal/transfer"
)

type randomQuery struct {
	q    Query
	name string
}

func randomQueries(seed uint64, numStops, n int) []randomQuery {
	return randomQueriesIn(seed, numStops, n, 6*3600, 4*3600)
}

// randomQueriesIn draws departures from [from, from+span).
func randomQueriesIn(seed uint64, numStops, n, from, span int) []randomQuery {
	r := rand.New(rand.NewPCG(seed, 7))
	out := make([]randomQuery, n)
	for i := range out {
		q := Query{
			Origin:      r.IntN(numStops),
			Destination: r.IntN(numStops),
			Departure:   network.ServiceTime(from + r.IntN(span)),
		}
		out[i] = randomQuery{q: q, name: fmt.Sprintf("%d->%d@%s", q.Origin, q.Destination, q.Departure)}
	}
	return out
}

func TestEnginesAgree(t *testing.T) {
	for _, seed := range []uint64{1, 2, 3, 42} {
		t.Run(fmt.Sprintf("seconds/seed=%d", seed), func(t *testing.T) {
			enginesAgree(t, randomFeed(seed, 30, 60), randomQueries(seed, 30, 80))
		})
		// zero-duration hops and shared departure instants
		t.Run(fmt.Sprintf("minutes/seed=%d", seed), func(t *testing.T) {
			enginesAgree(t, minuteFeed(seed, 30, 60), randomQueriesIn(seed, 30, 80, 6*3600, 3600))
		})
	}
}

func enginesAgree(t *testing.T, feed *gtfs.Feed, queries []randomQuery) {
	t.Helper()
	fx := newFixture(t, feed, transfer.Options{Mode: transfer.ModeBoth, MaxRadius: 400})
	engines := fx.engines(Options{MaxJourneySeconds: 3 * 3600, MaxVehicleSpeed: 15})

	reached := 0
	for _, rq := range queries {
		var want network.ServiceTime
		for i, e := range engines {
			s, err := e.Search(rq.q)
			got := network.Unreachable
			if err != nil {
				require.True(t, errors.Is(err, ErrNoRouteFound), "%s %s: %v", e.Strategy(), rq.name, err)
			} else {
				got = s.DestinationArrival()
				j, err := Reconstruct(s, geo.DefaultWalkingSpeed)
				require.NoError(t, err)
				assert.Equal(t, got, replay(t, j), "%s %s: replay", e.Strategy(), rq.name)
			}
			if i == 0 {
				want = got
				if got != network.Unreachable {
					reached++
				}
				continue
			}
			assert.Equal(t, want, got, "%s disagrees with csa on %s", e.Strategy(), rq.name)
		}
	}
	assert.Positive(t, reached)
}

func TestArrivalsOnlyDecrease(t *testing.T) {
	fx := newFixture(t, randomFeed(5, 25, 50), transfer.Options{Mode: transfer.ModeBoth, MaxRadius: 400})

	csa := NewConnectionScan(fx.net, fx.idx, fx.walk, Options{})
	dij := NewLabelSetting(fx.net, fx.idx, fx.walk, Options{}, false)
	astar := NewLabelSetting(fx.net, fx.idx, fx.walk, Options{MaxVehicleSpeed: 15}, true)

	for _, rq := range randomQueries(5, fx.net.NumStops(), 40) {
		var last map[[2]int]network.ServiceTime
		check := func(stop int, l layer, at network.ServiceTime) {
			key := [2]int{stop, int(l)}
			if prev, ok := last[key]; ok {
				assert.Less(t, at, prev, "%s: arrival at stop %d went up", rq.name, stop)
			}
			last[key] = at
		}
		csa.observe, dij.observe, astar.observe = check, check, check

		for _, e := range []Engine{csa, dij, astar} {
			last = make(map[[2]int]network.ServiceTime)
			_, _ = e.Search(rq.q)
		}
	}
}

func TestExtraFootpathNeverHurts(t *testing.T) {
	base := randomFeed(11, 25, 50)
	before := newFixture(t, base, transfer.Options{Mode: transfer.ModeExplicit})

	r := rand.New(rand.NewPCG(11, 13))
	for k := 0; k < 5; k++ {
		withExtra := *base
		withExtra.Transfers = append(append([]gtfs.Transfer(nil), base.Transfers...), gtfs.Transfer{
			FromStopID: base.Stops[r.IntN(len(base.Stops))].StopID,
			ToStopID:   base.Stops[r.IntN(len(base.Stops))].StopID,
			Seconds:    60 + r.IntN(300),
		})
		after := newFixture(t, &withExtra, transfer.Options{Mode: transfer.ModeExplicit})

		for _, rq := range randomQueries(uint64(k), before.net.NumStops(), 40) {
			arr := func(fx fixture) network.ServiceTime {
				s, err := NewConnectionScan(fx.net, fx.idx, fx.walk, Options{}).Search(rq.q)
				if err != nil {
					return network.Unreachable
				}
				return s.DestinationArrival()
			}
			assert.LessOrEqual(t, arr(after), arr(before), rq.name)
		}
	}
}
