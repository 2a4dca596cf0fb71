package planner

import (
	"context"
	"fmt"
	"log"
	"time"

	"transit-planner/internal/geo"
	"transit-planner/internal/gtfs"
	"transit-planner/internal/network"
	"transit-planner/internal/routing"
	"transit-planner/internal/transfer"
)

const DefaultAccessRadius = 800.0

type Options struct {
	Strategy routing.Strategy
	// AccessRadius bounds the walk from a query coordinate to its stop, in meters.
	AccessRadius float64
	WalkingSpeed float64
	Routing      routing.Options
	Transfer     transfer.Options
	// ServiceDay is the local midnight the timetable was filtered for; zero
	// when the feed is not tied to a day.
	ServiceDay time.Time
}

// Query is a coordinate to coordinate request. An empty Strategy uses the
// planner's default engine.
type Query struct {
	From      geo.Coord
	To        geo.Coord
	Departure network.ServiceTime
	Strategy  routing.Strategy
}

type Metrics interface {
	QueryObserve(strategy routing.Strategy, code string, d time.Duration, stats routing.Stats)
	NetworkSet(stops, connections, footpaths int)
}

// Info summarizes the loaded network.
type Info struct {
	Source      string    `json:"source"`
	Stops       int       `json:"stops"`
	Connections int       `json:"connections"`
	Trips       int       `json:"trips"`
	Footpaths   int       `json:"footpaths"`
	BuiltAt     time.Time `json:"builtAt"`
	ServiceDay  time.Time `json:"serviceDay,omitzero"`
}

// Planner answers journey queries over one immutable network. It is safe for
// concurrent use.
type Planner struct {
	net     *network.Network
	idx     *network.ConnectionIndex
	walk    *transfer.Service
	engines map[routing.Strategy]routing.Engine
	opts    Options
	metrics Metrics
	info    Info
}

// New builds the network, connection index, footpaths and engines for feed.
// source names where the feed came from and is only reported back in Info.
func New(ctx context.Context, feed *gtfs.Feed, source string, opts Options, m Metrics) (*Planner, error) {
	started := time.Now()
	if opts.AccessRadius <= 0 {
		opts.AccessRadius = DefaultAccessRadius
	}
	if opts.WalkingSpeed <= 0 {
		opts.WalkingSpeed = geo.DefaultWalkingSpeed
	}
	if opts.Strategy == "" {
		opts.Strategy = routing.StrategyCSA
	}
	if _, err := routing.ParseStrategy(string(opts.Strategy)); err != nil {
		return nil, err
	}
	opts.Transfer.WalkingSpeed = opts.WalkingSpeed
	if opts.Routing.MaxJourneySeconds <= 0 {
		opts.Routing.MaxJourneySeconds = routing.DefaultMaxJourneySeconds
	}

	net, err := network.Build(feed)
	if err != nil {
		return nil, err
	}
	idx := network.NewConnectionIndex(net)
	walk, err := transfer.Build(ctx, net, opts.Transfer)
	if err != nil {
		return nil, fmt.Errorf("build footpaths: %w", err)
	}

	p := &Planner{
		net:     net,
		idx:     idx,
		walk:    walk,
		engines: make(map[routing.Strategy]routing.Engine),
		opts:    opts,
		metrics: m,
		info: Info{
			Source:      source,
			Stops:       net.NumStops(),
			Connections: idx.Len(),
			Trips:       net.NumTrips(),
			Footpaths:   walk.Count(),
			BuiltAt:     time.Now(),
			ServiceDay:  opts.ServiceDay,
		},
	}
	for _, st := range []routing.Strategy{routing.StrategyCSA, routing.StrategyDijkstra, routing.StrategyAStar} {
		e, err := routing.NewEngine(st, net, idx, walk, opts.Routing)
		if err != nil {
			return nil, err
		}
		p.engines[st] = e
	}
	if m != nil {
		m.NetworkSet(p.info.Stops, p.info.Connections, p.info.Footpaths)
	}

	log.Printf("planner ready: %d stops, %d trips, %d connections, %d footpaths from %s in %s",
		p.info.Stops, p.info.Trips, p.info.Connections, p.info.Footpaths, source, time.Since(started).Round(time.Millisecond))
	return p, nil
}

func (p *Planner) Info() Info { return p.info }

// ServiceTimeAt converts a wall clock instant to a departure on the loaded
// timetable. Past midnight on a network built for the previous day this
// yields 24:xx rather than wrapping.
func (p *Planner) ServiceTimeAt(t time.Time, loc *time.Location) network.ServiceTime {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	if day := p.info.ServiceDay; !day.IsZero() {
		// count wall clock seconds from the service day's midnight
		y, m, d := day.Date()
		midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
		if sec := int(t.Sub(midnight) / time.Second); sec >= 0 {
			return network.ServiceTime(sec)
		}
	}
	return network.ServiceTime(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// maxAccessSeconds bounds the first mile walk.
func (p *Planner) maxAccessSeconds() int {
	return geo.WalkSeconds(p.opts.AccessRadius, p.opts.WalkingSpeed)
}

func (p *Planner) Network() *network.Network { return p.net }

// NearbyStops lists the stops within radius meters of c, nearest first.
func (p *Planner) NearbyStops(c geo.Coord, radius float64) ([]transfer.Nearby, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return p.walk.NearbyStops(c, radius), nil
}

// FindRoute plans the earliest-arrival journey for q, including the walks
// between the query coordinates and the stops they resolve to.
func (p *Planner) FindRoute(q Query) (*routing.Journey, error) {
	strategy := q.Strategy
	if strategy == "" {
		strategy = p.opts.Strategy
	}
	start := time.Now()
	var stats routing.Stats
	j, err := p.findRoute(q, strategy, &stats)
	if p.metrics != nil {
		p.metrics.QueryObserve(strategy, Code(err), time.Since(start), stats)
	}
	return j, err
}

func (p *Planner) findRoute(q Query, strategy routing.Strategy, stats *routing.Stats) (*routing.Journey, error) {
	if err := q.From.Validate(); err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	if err := q.To.Validate(); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	// the whole journey window, first mile included, must stay representable
	limit := network.Unreachable - network.ServiceTime(p.opts.Routing.MaxJourneySeconds) - network.ServiceTime(p.maxAccessSeconds())
	if q.Departure < 0 || q.Departure >= limit {
		return nil, fmt.Errorf("%w: departure %d out of range", ErrInvalidRequest, int(q.Departure))
	}
	engine, ok := p.engines[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRequest, strategy)
	}

	origin, err := p.walk.Nearest(q.From, p.opts.AccessRadius)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	dest, err := p.walk.Nearest(q.To, p.opts.AccessRadius)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	var firstMile int
	if origin.Distance > 0 {
		firstMile = geo.WalkSeconds(origin.Distance, p.opts.WalkingSpeed)
	}
	s, err := engine.Search(routing.Query{
		Origin:      origin.Stop.Index,
		Destination: dest.Stop.Index,
		Departure:   q.Departure.Add(firstMile),
	})
	if err != nil {
		return nil, err
	}
	*stats = s.Stats

	scanned, err := routing.Reconstruct(s, p.opts.WalkingSpeed)
	if err != nil {
		return nil, err
	}

	legs := make([]routing.Leg, 0, len(scanned.Legs)+2)
	if origin.Distance > 0 {
		legs = append(legs, routing.Leg{
			Mode:     routing.ModeWalk,
			From:     routing.Place{Coord: q.From},
			To:       routing.StopPlace(origin.Stop),
			Start:    q.Departure,
			Duration: firstMile,
			Distance: origin.Distance,
		})
	}
	legs = append(legs, scanned.Legs...)
	if dest.Distance > 0 {
		legs = append(legs, routing.Leg{
			Mode:     routing.ModeWalk,
			From:     routing.StopPlace(dest.Stop),
			To:       routing.Place{Coord: q.To},
			Start:    scanned.Arrival,
			Duration: geo.WalkSeconds(dest.Distance, p.opts.WalkingSpeed),
			Distance: dest.Distance,
		})
	}

	j := routing.Assemble(legs, q.Departure, strategy, p.opts.WalkingSpeed)
	if j.Arrival > q.Departure.Add(p.opts.Routing.MaxJourneySeconds) {
		return nil, fmt.Errorf("%w: arrival %s exceeds the journey limit", routing.ErrNoRouteFound, j.Arrival)
	}
	return j, nil
}
