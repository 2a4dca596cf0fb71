package routing

import "transit-planner/internal/network"

type layer uint8

const (
	// layerRide holds arrivals by vehicle (and the origin); footpaths may leave it.
	layerRide layer = iota
	// layerWalk holds arrivals on foot; no further footpath may leave it.
	layerWalk
)

type labelKind uint8

const (
	labelNone labelKind = iota
	labelOrigin
	labelRide
	labelWalk
)

// label is the predecessor of a (stop, layer) node.
type label struct {
	kind labelKind
	// ride: positions in the connection index of the boarding and the exit
	// connection, and the layer the boarding stop was reached on.
	board, exit int32
	boardLayer  layer
	// walk: the stop walked from (always on layerRide) and when the walk began.
	from  int
	start network.ServiceTime
}

type Stats struct {
	// Scanned counts connections inspected by the scan.
	Scanned int
	// Settled counts labels popped from the priority queue.
	Settled int
}

// SearchState is the outcome of one search. It is never shared between queries.
type SearchState struct {
	Query    Query
	Strategy Strategy
	Stats    Stats

	net     *network.Network
	idx     *network.ConnectionIndex
	arrival [2][]network.ServiceTime
	labels  [2][]label
	// target is the layer the destination was reached on.
	target layer

	observe observer
}

type observer func(stop int, l layer, t network.ServiceTime)

func newSearchState(net *network.Network, idx *network.ConnectionIndex, q Query, strategy Strategy, observe observer) *SearchState {
	n := net.NumStops()
	s := &SearchState{
		Query:    q,
		Strategy: strategy,
		net:      net,
		idx:      idx,
		observe:  observe,
	}
	for l := range s.arrival {
		s.arrival[l] = make([]network.ServiceTime, n)
		for i := range s.arrival[l] {
			s.arrival[l][i] = network.Unreachable
		}
		s.labels[l] = make([]label, n)
	}
	s.set(q.Origin, layerRide, q.Departure, label{kind: labelOrigin})
	return s
}

func (s *SearchState) set(stop int, l layer, t network.ServiceTime, lb label) {
	s.arrival[l][stop] = t
	s.labels[l][stop] = lb
	if s.observe != nil {
		s.observe(stop, l, t)
	}
}

// Arrival is the earliest known arrival at stop, or network.Unreachable.
func (s *SearchState) Arrival(stop int) network.ServiceTime {
	return min(s.arrival[layerRide][stop], s.arrival[layerWalk][stop])
}

func (s *SearchState) Reached(stop int) bool { return s.Arrival(stop) != network.Unreachable }

// DestinationArrival is the earliest arrival at the query destination.
func (s *SearchState) DestinationArrival() network.ServiceTime {
	return s.arrival[s.target][s.Query.Destination]
}

func (s *SearchState) bestLayer(stop int) layer {
	if s.arrival[layerWalk][stop] < s.arrival[layerRide][stop] {
		return layerWalk
	}
	return layerRide
}
