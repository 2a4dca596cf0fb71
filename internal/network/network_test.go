package network

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-planner/internal/gtfs"
)

func sampleFeed() *gtfs.Feed {
	return &gtfs.Feed{
		Stops: []gtfs.Stop{
			{StopID: "A", StopName: "Alpha", StopLat: 41.000, StopLon: 2.000},
			{StopID: "B", StopName: "Bravo", StopLat: 41.010, StopLon: 2.000},
			{StopID: "C", StopName: "Charlie", StopLat: 41.020, StopLon: 2.000},
			{StopID: "A", StopName: "Duplicate", StopLat: 0, StopLon: 0},
			{StopID: "S", StopName: "Station", StopLat: 41.0, StopLon: 2.0, LocationType: 1},
		},
		Routes: []gtfs.Route{{RouteID: "R1", RouteShortName: "1"}},
		Trips:  []gtfs.Trip{{TripID: "T1", RouteID: "R1", TripHeadsign: "Charlie"}},
		StopTimes: []gtfs.StopTime{
			{TripID: "T1", StopID: "C", StopSequence: 3, ArrivalSec: 1300, DepartureSec: 1300},
			{TripID: "T1", StopID: "A", StopSequence: 1, ArrivalSec: 1000, DepartureSec: 1000},
			{TripID: "T1", StopID: "B", StopSequence: 2, ArrivalSec: 1100, DepartureSec: 1200},
		},
		Transfers: []gtfs.Transfer{
			{FromStopID: "A", ToStopID: "B", Seconds: 90, Bidirectional: true},
			{FromStopID: "A", ToStopID: "Z", Seconds: 60},
			{FromStopID: "C", ToStopID: "C", Seconds: 60},
		},
	}
}

func TestBuild(t *testing.T) {
	n, err := Build(sampleFeed())
	require.NoError(t, err)

	assert.Equal(t, 4, n.NumStops())
	a, err := n.Stop("A")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", a.Name, "first stop record wins")
	assert.Equal(t, 0, a.Index)

	s, err := n.Stop("S")
	require.NoError(t, err)
	assert.Equal(t, KindStation, s.Kind)
	assert.False(t, s.Kind.Boardable())

	_, err = n.Stop("nope")
	assert.True(t, errors.Is(err, ErrStopNotFound))

	conns := n.Connections()
	require.Len(t, conns, 2)
	assert.Equal(t, Connection{
		Trip: 0, TripID: "T1", RouteID: "R1", RouteShortName: "1", Headsign: "Charlie",
		From: 0, To: 1, Departure: 1000, Arrival: 1100, Sequence: 1,
	}, conns[0])
	assert.Equal(t, ServiceTime(1200), conns[1].Departure)
	assert.Equal(t, ServiceTime(1300), conns[1].Arrival)
	assert.Equal(t, 1, n.NumTrips())
	assert.Equal(t, "T1", n.TripID(0))

	assert.ElementsMatch(t, []Footpath{
		{From: 0, To: 1, Seconds: 90},
		{From: 1, To: 0, Seconds: 90},
	}, n.Footpaths())
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *gtfs.Feed)
	}{
		{"unknown stop", func(f *gtfs.Feed) { f.StopTimes[0].StopID = "X" }},
		{"negative time", func(f *gtfs.Feed) { f.StopTimes[1].ArrivalSec = -5 }},
		{"departs before arrival", func(f *gtfs.Feed) { f.StopTimes[2].DepartureSec = 1050 }},
		{"time travel", func(f *gtfs.Feed) { f.StopTimes[0].ArrivalSec, f.StopTimes[0].DepartureSec = 1150, 1150 }},
		{"bad coordinate", func(f *gtfs.Feed) { f.Stops[1].StopLat = 123 }},
		{"empty id", func(f *gtfs.Feed) { f.Stops[2].StopID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := sampleFeed()
			tt.mutate(f)
			_, err := Build(f)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDataLoad))
		})
	}

	_, err := Build(nil)
	assert.True(t, errors.Is(err, ErrDataLoad))
}

func TestSameStation(t *testing.T) {
	station := Stop{ID: "S"}
	p1 := Stop{ID: "P1", Parent: "S"}
	p2 := Stop{ID: "P2", Parent: "S"}
	other := Stop{ID: "Q", Parent: "T"}
	loose := Stop{ID: "L"}

	assert.True(t, SameStation(p1, p2))
	assert.True(t, SameStation(station, p1))
	assert.True(t, SameStation(p2, station))
	assert.True(t, SameStation(loose, loose))
	assert.False(t, SameStation(p1, other))
	assert.False(t, SameStation(loose, Stop{ID: "M"}))
}

func TestKindFromLocationType(t *testing.T) {
	assert.Equal(t, KindStop, KindFromLocationType(0))
	assert.Equal(t, KindStation, KindFromLocationType(1))
	assert.Equal(t, KindEntrance, KindFromLocationType(2))
	assert.Equal(t, KindOther, KindFromLocationType(4))
	assert.True(t, KindStop.Boardable())
	assert.False(t, KindEntrance.Boardable())
	assert.Equal(t, "entrance", KindEntrance.String())
}

func TestServiceTime(t *testing.T) {
	st, err := ParseServiceTime("25:01:02")
	require.NoError(t, err)
	assert.Equal(t, ServiceTime(25*3600+62), st)
	assert.Equal(t, "25:01:02", st.String())
	assert.Equal(t, "unreachable", Unreachable.String())

	_, err = ParseServiceTime("596523:59:59")
	assert.Error(t, err)
	_, err = ParseServiceTime("noon")
	assert.Error(t, err)

	assert.Equal(t, ServiceTime(130), ServiceTime(100).Add(30))
	assert.Equal(t, Unreachable, Unreachable.Add(10))
	assert.Equal(t, Unreachable, (Unreachable - 5).Add(10))
}
