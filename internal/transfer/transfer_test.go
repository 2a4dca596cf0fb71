package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-planner/internal/geo"
	"transit-planner/internal/gtfs"
	"transit-planner/internal/network"
)

// A and B are ~111 m apart, C is ~1.1 km north of A. P1 and P2 are platforms
// of station S, ~890 m apart.
func testNetwork(t *testing.T) *network.Network {
	t.Helper()
	n, err := network.Build(&gtfs.Feed{
		Stops: []gtfs.Stop{
			{StopID: "A", StopLat: 41.000, StopLon: 2.000},
			{StopID: "B", StopLat: 41.001, StopLon: 2.000},
			{StopID: "C", StopLat: 41.010, StopLon: 2.000},
			{StopID: "S", StopLat: 41.050, StopLon: 2.000, LocationType: 1},
			{StopID: "P1", StopLat: 41.046, StopLon: 2.000, ParentStation: "S"},
			{StopID: "P2", StopLat: 41.054, StopLon: 2.000, ParentStation: "S"},
		},
		Transfers: []gtfs.Transfer{
			{FromStopID: "A", ToStopID: "B", Seconds: 30},
			{FromStopID: "A", ToStopID: "C", Seconds: 600},
			{FromStopID: "B", ToStopID: "A", Seconds: 0},
		},
	})
	require.NoError(t, err)
	return n
}

func idx(t *testing.T, n *network.Network, id string) int {
	t.Helper()
	s, err := n.Stop(id)
	require.NoError(t, err)
	return s.Index
}

func TestBuildModes(t *testing.T) {
	n := testNetwork(t)
	a, b, c := idx(t, n, "A"), idx(t, n, "B"), idx(t, n, "C")
	p1, p2 := idx(t, n, "P1"), idx(t, n, "P2")
	ctx := context.Background()

	t.Run("explicit", func(t *testing.T) {
		s, err := Build(ctx, n, Options{Mode: ModeExplicit, MaxRadius: 200})
		require.NoError(t, err)
		secs, ok := s.WalkTime(a, b)
		require.True(t, ok)
		assert.Equal(t, 30, secs)
		assert.True(t, s.CanWalk(a, c))
		// zero-second records are raised to one second
		secs, _ = s.WalkTime(b, a)
		assert.Equal(t, 1, secs)
		assert.False(t, s.CanWalk(p1, p2))
		assert.Equal(t, 3, s.Count())
	})

	t.Run("synthesized", func(t *testing.T) {
		s, err := Build(ctx, n, Options{Mode: ModeSynthesized, MaxRadius: 200})
		require.NoError(t, err)
		secs, ok := s.WalkTime(a, b)
		require.True(t, ok)
		want := geo.WalkSeconds(geo.Distance(n.StopAt(a).Coord, n.StopAt(b).Coord), geo.DefaultWalkingSpeed)
		assert.Equal(t, want, secs)
		assert.False(t, s.CanWalk(a, c))
		// platforms of one station connect regardless of radius
		assert.True(t, s.CanWalk(p1, p2))
		assert.True(t, s.CanWalk(p2, p1))
		assert.False(t, s.CanWalk(a, a))
	})

	t.Run("both keeps the faster time", func(t *testing.T) {
		s, err := Build(ctx, n, Options{Mode: ModeBoth, MaxRadius: 200})
		require.NoError(t, err)
		secs, _ := s.WalkTime(a, b)
		assert.Equal(t, 30, secs)
		assert.True(t, s.CanWalk(a, c))
		assert.True(t, s.CanWalk(p1, p2))
		fps := s.Footpaths(a)
		for i := 1; i < len(fps); i++ {
			assert.Less(t, fps[i-1].To, fps[i].To)
		}
	})
}

func TestBuildWorkersAgree(t *testing.T) {
	n := testNetwork(t)
	one, err := Build(context.Background(), n, Options{Mode: ModeSynthesized, MaxRadius: 1500, Workers: 1})
	require.NoError(t, err)
	many, err := Build(context.Background(), n, Options{Mode: ModeSynthesized, MaxRadius: 1500, Workers: 8})
	require.NoError(t, err)
	for i := 0; i < n.NumStops(); i++ {
		assert.Equal(t, one.Footpaths(i), many.Footpaths(i))
	}
}

func TestBuildErrors(t *testing.T) {
	n := testNetwork(t)
	_, err := Build(context.Background(), n, Options{Mode: "teleport"})
	assert.Error(t, err)
	_, err = Build(context.Background(), n, Options{MaxRadius: -1})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Build(ctx, n, Options{Mode: ModeSynthesized, MaxRadius: 100})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNearbyStopsRadiusBoundary(t *testing.T) {
	n := testNetwork(t)
	s, err := Build(context.Background(), n, Options{Mode: ModeExplicit})
	require.NoError(t, err)
	a := n.StopAt(idx(t, n, "A"))
	b := n.StopAt(idx(t, n, "B"))
	d := geo.Distance(a.Coord, b.Coord)

	got := s.NearbyStops(a.Coord, d)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Stop.ID)
	assert.Zero(t, got[0].Distance)
	assert.Equal(t, "B", got[1].Stop.ID)

	got = s.NearbyStops(a.Coord, d-0.001)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Stop.ID)

	assert.Empty(t, s.NearbyStops(a.Coord, -1))
}

func TestNearest(t *testing.T) {
	n := testNetwork(t)
	s, err := Build(context.Background(), n, Options{Mode: ModeExplicit})
	require.NoError(t, err)

	// the station itself is closest but cannot be boarded
	nb, err := s.Nearest(geo.Coord{Lat: 41.050, Lon: 2.000}, 1000)
	require.NoError(t, err)
	assert.Contains(t, []string{"P1", "P2"}, nb.Stop.ID)

	_, err = s.Nearest(geo.Coord{Lat: 10, Lon: 10}, 1000)
	assert.True(t, errors.Is(err, network.ErrStopNotFound))
}

func TestNearbyAcrossAntimeridian(t *testing.T) {
	n, err := network.Build(&gtfs.Feed{Stops: []gtfs.Stop{
		{StopID: "E", StopLat: -16.5, StopLon: 179.9995},
		{StopID: "W", StopLat: -16.5, StopLon: -179.9995},
	}})
	require.NoError(t, err)
	s, err := Build(context.Background(), n, Options{Mode: ModeSynthesized, MaxRadius: 500})
	require.NoError(t, err)

	got := s.NearbyStops(geo.Coord{Lat: -16.5, Lon: 179.9995}, 500)
	assert.Len(t, got, 2)
	assert.True(t, s.CanWalk(0, 1))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeBoth, m)
	m, err = ParseMode("explicit")
	require.NoError(t, err)
	assert.Equal(t, ModeExplicit, m)
	_, err = ParseMode("fly")
	assert.Error(t, err)
}
