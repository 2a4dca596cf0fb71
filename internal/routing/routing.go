package routing

import (
	"errors"
	"fmt"
	"math"

	"transit-planner/internal/network"
)

var (
	ErrNoRouteFound = errors.New("no route found")
	// ErrInvalidDeparture rejects departures outside the representable
	// service time range.
	ErrInvalidDeparture = errors.New("invalid departure time")
)

type Strategy string

const (
	StrategyCSA      Strategy = "csa"
	StrategyDijkstra Strategy = "dijkstra"
	StrategyAStar    Strategy = "astar"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyCSA, StrategyDijkstra, StrategyAStar:
		return st, nil
	case "":
		return StrategyCSA, nil
	default:
		return "", fmt.Errorf("invalid routing strategy: %q", s)
	}
}

// Query asks for the earliest arrival at Destination leaving Origin no earlier
// than Departure. Stops are dense network indexes.
type Query struct {
	Origin      int
	Destination int
	Departure   network.ServiceTime
}

// Walkways is the footpath graph the engines walk on.
type Walkways interface {
	Footpaths(stop int) []network.Footpath
	MaxSpeed() float64
}

type Options struct {
	// MaxJourneySeconds bounds how long after departure a journey may end.
	MaxJourneySeconds int
	// MaxVehicleSpeed (m/s) is a floor for the A* speed bound.
	MaxVehicleSpeed float64
}

const DefaultMaxJourneySeconds = 4 * 3600

// Engine computes earliest arrivals. Implementations are safe for concurrent
// use; each Search allocates its own state.
type Engine interface {
	Search(q Query) (*SearchState, error)
	Strategy() Strategy
}

// NewEngine returns the engine implementing strategy.
func NewEngine(strategy Strategy, net *network.Network, idx *network.ConnectionIndex, walk Walkways, opts Options) (Engine, error) {
	switch strategy {
	case StrategyCSA, "":
		return NewConnectionScan(net, idx, walk, opts), nil
	case StrategyDijkstra:
		return NewLabelSetting(net, idx, walk, opts, false), nil
	case StrategyAStar:
		return NewLabelSetting(net, idx, walk, opts, true), nil
	default:
		return nil, fmt.Errorf("invalid routing strategy: %q", strategy)
	}
}

func (o Options) withDefaults() Options {
	if o.MaxJourneySeconds <= 0 {
		o.MaxJourneySeconds = DefaultMaxJourneySeconds
	}
	return o
}

func (o Options) cutoff(departure network.ServiceTime) network.ServiceTime {
	return departure.Add(o.MaxJourneySeconds)
}

func checkQuery(net *network.Network, q Query) error {
	n := net.NumStops()
	if q.Origin < 0 || q.Origin >= n {
		return fmt.Errorf("%w: origin index %d", network.ErrStopNotFound, q.Origin)
	}
	if q.Destination < 0 || q.Destination >= n {
		return fmt.Errorf("%w: destination index %d", network.ErrStopNotFound, q.Destination)
	}
	if q.Departure < 0 || q.Departure >= network.Unreachable {
		return fmt.Errorf("%w: %d", ErrInvalidDeparture, q.Departure)
	}
	return nil
}

// speedBound is the fastest straight-line speed anything in the network moves
// at; +Inf disables the A* heuristic.
func speedBound(idx *network.ConnectionIndex, walk Walkways, opts Options) float64 {
	return math.Max(math.Max(opts.MaxVehicleSpeed, idx.MaxSpeed()), walk.MaxSpeed())
}
