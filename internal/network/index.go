package network

import (
	"math"
	"sort"

	"transit-planner/internal/geo"
)

// ConnectionIndex holds every connection sorted by departure plus a per-stop
// departure list. It is read-only once built and safe for concurrent use.
type ConnectionIndex struct {
	conns      []Connection
	departures [][]int32
	trips      [][]int32
	maxSpeed   float64
}

func NewConnectionIndex(n *Network) *ConnectionIndex {
	conns := make([]Connection, len(n.conns))
	copy(conns, n.conns)
	sort.Slice(conns, func(i, j int) bool {
		a, b := &conns[i], &conns[j]
		if a.Departure != b.Departure {
			return a.Departure < b.Departure
		}
		if a.Arrival != b.Arrival {
			return a.Arrival < b.Arrival
		}
		if a.Trip != b.Trip {
			return a.Trip < b.Trip
		}
		return a.Sequence < b.Sequence
	})

	x := &ConnectionIndex{
		conns:      conns,
		departures: make([][]int32, len(n.stops)),
		trips:      make([][]int32, len(n.tripIDs)),
	}
	for i := range conns {
		c := &conns[i]
		x.departures[c.From] = append(x.departures[c.From], int32(i))
		x.trips[c.Trip] = append(x.trips[c.Trip], int32(i))

		d := geo.Distance(n.stops[c.From].Coord, n.stops[c.To].Coord)
		dur := float64(c.Arrival - c.Departure)
		switch {
		case dur == 0 && d > 0:
			x.maxSpeed = math.Inf(1)
		case dur > 0 && d/dur > x.maxSpeed:
			x.maxSpeed = d / dur
		}
	}
	return x
}

func (x *ConnectionIndex) Len() int { return len(x.conns) }

// At returns the i-th connection in departure order. It must not be modified.
func (x *ConnectionIndex) At(i int) *Connection { return &x.conns[i] }

// FirstAtOrAfter returns the position of the first connection departing at or
// after t, or Len() when there is none.
func (x *ConnectionIndex) FirstAtOrAfter(t ServiceTime) int {
	return sort.Search(len(x.conns), func(i int) bool { return x.conns[i].Departure >= t })
}

// DeparturesFrom returns the positions of connections leaving stop at or after
// t, in departure order.
func (x *ConnectionIndex) DeparturesFrom(stop int, t ServiceTime) []int32 {
	if stop < 0 || stop >= len(x.departures) {
		return nil
	}
	deps := x.departures[stop]
	i := sort.Search(len(deps), func(i int) bool { return x.conns[deps[i]].Departure >= t })
	return deps[i:]
}

// TripConnections returns the positions of a trip's connections in stop
// sequence order.
func (x *ConnectionIndex) TripConnections(trip int) []int32 {
	if trip < 0 || trip >= len(x.trips) {
		return nil
	}
	return x.trips[trip]
}

// MaxSpeed is the fastest straight-line speed of any connection in m/s. It is
// +Inf when some connection covers a distance in zero seconds.
func (x *ConnectionIndex) MaxSpeed() float64 { return x.maxSpeed }
