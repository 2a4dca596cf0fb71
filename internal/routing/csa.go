package routing

import (
	"fmt"

	"transit-planner/internal/network"
)

// ConnectionScan is the earliest-arrival Connection Scan Algorithm over the
// departure-sorted connection index.
type ConnectionScan struct {
	net  *network.Network
	idx  *network.ConnectionIndex
	walk Walkways
	opts Options

	observe observer
}

func NewConnectionScan(net *network.Network, idx *network.ConnectionIndex, walk Walkways, opts Options) *ConnectionScan {
	return &ConnectionScan{net: net, idx: idx, walk: walk, opts: opts.withDefaults()}
}

func (e *ConnectionScan) Strategy() Strategy { return StrategyCSA }

func (e *ConnectionScan) Search(q Query) (*SearchState, error) {
	if err := checkQuery(e.net, q); err != nil {
		return nil, err
	}
	s := newSearchState(e.net, e.idx, q, StrategyCSA, e.observe)
	e.relax(s, q.Origin, q.Departure)

	cutoff := e.opts.cutoff(q.Departure)
	dest := q.Destination

	// position of the connection each trip was boarded with, -1 if not boarded
	tripEnter := make([]int32, e.net.NumTrips())
	tripLayer := make([]layer, e.net.NumTrips())
	for i := range tripEnter {
		tripEnter[i] = -1
	}

	for i := e.idx.FirstAtOrAfter(q.Departure); i < e.idx.Len(); {
		dep := e.idx.At(i).Departure
		if s.Arrival(dest) <= dep || dep > cutoff {
			break
		}
		end := i + 1
		for end < e.idx.Len() && e.idx.At(end).Departure == dep {
			end++
		}
		// zero-duration connections can feed ones departing the same instant
		// that sort earlier; rescan the block until it settles
		for e.scanBlock(s, i, end, tripEnter, tripLayer) {
		}
		i = end
	}

	if arr := s.Arrival(dest); arr == network.Unreachable || arr > cutoff {
		return nil, fmt.Errorf("%w: %s to %s departing %s", ErrNoRouteFound,
			e.net.StopAt(q.Origin).ID, e.net.StopAt(dest).ID, q.Departure)
	}
	s.target = s.bestLayer(dest)
	return s, nil
}

// scanBlock scans connections [from, to), which all depart at the same time.
// It reports whether a zero-duration connection improved an arrival.
func (e *ConnectionScan) scanBlock(s *SearchState, from, to int, tripEnter []int32, tripLayer []layer) bool {
	changed := false
	for i := from; i < to; i++ {
		c := e.idx.At(i)
		s.Stats.Scanned++

		// a trip entered further along in an earlier pass may still be
		// boarded here
		if enter := tripEnter[c.Trip]; enter < 0 || int(enter) > i {
			l := s.bestLayer(c.From)
			if s.arrival[l][c.From] > c.Departure {
				continue
			}
			tripEnter[c.Trip] = int32(i)
			tripLayer[c.Trip] = l
		}

		if c.Arrival < s.arrival[layerRide][c.To] {
			s.set(c.To, layerRide, c.Arrival, label{
				kind:       labelRide,
				board:      tripEnter[c.Trip],
				exit:       int32(i),
				boardLayer: tripLayer[c.Trip],
			})
			e.relax(s, c.To, c.Arrival)
			if c.Arrival == c.Departure {
				changed = true
			}
		}
	}
	return changed
}

// relax walks every footpath leaving stop, reached by ride at time at.
func (e *ConnectionScan) relax(s *SearchState, stop int, at network.ServiceTime) {
	for _, fp := range e.walk.Footpaths(stop) {
		t := at.Add(fp.Seconds)
		if t < s.arrival[layerWalk][fp.To] {
			s.set(fp.To, layerWalk, t, label{kind: labelWalk, from: stop, start: at})
		}
	}
}
