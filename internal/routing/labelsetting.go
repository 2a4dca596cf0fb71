package routing

import (
	"container/heap"
	"fmt"
	"math"

	"transit-planner/internal/geo"
	"transit-planner/internal/network"
)

// LabelSetting is a time-dependent Dijkstra over (stop, layer) nodes. With the
// A* heuristic enabled it orders the queue by arrival plus a lower bound on the
// remaining travel time.
type LabelSetting struct {
	net   *network.Network
	idx   *network.ConnectionIndex
	walk  Walkways
	opts  Options
	astar bool
	speed float64

	observe observer
}

func NewLabelSetting(net *network.Network, idx *network.ConnectionIndex, walk Walkways, opts Options, astar bool) *LabelSetting {
	opts = opts.withDefaults()
	return &LabelSetting{
		net:   net,
		idx:   idx,
		walk:  walk,
		opts:  opts,
		astar: astar,
		speed: speedBound(idx, walk, opts),
	}
}

func (e *LabelSetting) Strategy() Strategy {
	if e.astar {
		return StrategyAStar
	}
	return StrategyDijkstra
}

func (e *LabelSetting) Search(q Query) (*SearchState, error) {
	if err := checkQuery(e.net, q); err != nil {
		return nil, err
	}
	s := newSearchState(e.net, e.idx, q, e.Strategy(), e.observe)
	cutoff := e.opts.cutoff(q.Departure)
	dest := q.Destination
	h := e.heuristic(dest)

	var settled [2][]bool
	for l := range settled {
		settled[l] = make([]bool, e.net.NumStops())
	}

	pq := &labelQueue{}
	push := func(stop int, l layer, t network.ServiceTime) {
		heap.Push(pq, queued{stop: stop, layer: l, t: t, key: int64(t) + h(stop)})
	}
	push(q.Origin, layerRide, q.Departure)

	for pq.Len() > 0 {
		it := heap.Pop(pq).(queued)
		if settled[it.layer][it.stop] || it.t > s.arrival[it.layer][it.stop] {
			continue
		}
		settled[it.layer][it.stop] = true
		s.Stats.Settled++

		if it.stop == dest {
			if it.t > cutoff {
				break
			}
			s.target = it.layer
			return s, nil
		}

		for _, p := range e.idx.DeparturesFrom(it.stop, it.t) {
			c := e.idx.At(int(p))
			if c.Departure > cutoff {
				break
			}
			if settled[layerRide][c.To] || c.Arrival >= s.arrival[layerRide][c.To] {
				continue
			}
			s.set(c.To, layerRide, c.Arrival, label{kind: labelRide, board: p, exit: p, boardLayer: it.layer})
			push(c.To, layerRide, c.Arrival)
		}

		if it.layer != layerRide {
			continue
		}
		for _, fp := range e.walk.Footpaths(it.stop) {
			t := it.t.Add(fp.Seconds)
			if settled[layerWalk][fp.To] || t >= s.arrival[layerWalk][fp.To] {
				continue
			}
			s.set(fp.To, layerWalk, t, label{kind: labelWalk, from: it.stop, start: it.t})
			push(fp.To, layerWalk, t)
		}
	}

	return nil, fmt.Errorf("%w: %s to %s departing %s", ErrNoRouteFound,
		e.net.StopAt(q.Origin).ID, e.net.StopAt(dest).ID, q.Departure)
}

// heuristic returns a lower bound, in whole seconds, on the time from a stop
// to dest. Plain Dijkstra uses zero.
func (e *LabelSetting) heuristic(dest int) func(stop int) int64 {
	if !e.astar || e.speed <= 0 || math.IsInf(e.speed, 1) {
		return func(int) int64 { return 0 }
	}
	target := e.net.StopAt(dest).Coord
	cache := make(map[int]int64)
	return func(stop int) int64 {
		if v, ok := cache[stop]; ok {
			return v
		}
		// scaled down slightly so float error cannot break consistency
		v := int64(math.Floor(0.999 * geo.Distance(e.net.StopAt(stop).Coord, target) / e.speed))
		cache[stop] = v
		return v
	}
}

type queued struct {
	stop  int
	layer layer
	t     network.ServiceTime
	key   int64
}

type labelQueue []queued

func (q labelQueue) Len() int { return len(q) }

func (q labelQueue) Less(i, j int) bool {
	if q[i].key != q[j].key {
		return q[i].key < q[j].key
	}
	if q[i].t != q[j].t {
		return q[i].t < q[j].t
	}
	return q[i].stop < q[j].stop
}

func (q labelQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *labelQueue) Push(x any) { *q = append(*q, x.(queued)) }

func (q *labelQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
