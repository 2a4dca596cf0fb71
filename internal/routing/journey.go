package routing

import (
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"

	"transit-planner/internal/geo"
	"transit-planner/internal/network"
)

type Mode string

const (
	ModeWalk Mode = "WALK"
	ModeRide Mode = "RIDE"
)

// Place is a leg endpoint: a stop, or a bare coordinate for first and last
// mile walks.
type Place struct {
	StopID string    `json:"stopId,omitempty"`
	Name   string    `json:"name,omitempty"`
	Coord  geo.Coord `json:"coord"`
}

func StopPlace(s network.Stop) Place {
	return Place{StopID: s.ID, Name: s.Name, Coord: s.Coord}
}

type Leg struct {
	Mode  Mode                `json:"mode"`
	From  Place               `json:"from"`
	To    Place               `json:"to"`
	Start network.ServiceTime `json:"start"`
	// Duration and Distance are in seconds and meters.
	Duration int     `json:"duration"`
	Distance float64 `json:"distance"`

	RouteID        string `json:"routeId,omitempty"`
	RouteShortName string `json:"routeShortName,omitempty"`
	Headsign       string `json:"headsign,omitempty"`
	TripID         string `json:"tripId,omitempty"`
	// Stops lists the stop ids a ride passes, boarding and alighting included.
	Stops []string `json:"stops,omitempty"`
}

func (l Leg) End() network.ServiceTime { return l.Start.Add(l.Duration) }

type Journey struct {
	ID            uuid.UUID           `json:"id"`
	Legs          []Leg               `json:"legs"`
	Departure     network.ServiceTime `json:"departure"`
	Arrival       network.ServiceTime `json:"arrival"`
	TotalDistance float64             `json:"totalDistance"`
	TotalTime     int                 `json:"totalTime"`
	Strategy      Strategy            `json:"strategy"`
}

// Reconstruct follows the predecessor labels of a finished search from the
// destination back to the origin.
func Reconstruct(s *SearchState, walkingSpeed float64) (*Journey, error) {
	dest := s.Query.Destination
	if s.DestinationArrival() == network.Unreachable {
		return nil, ErrNoRouteFound
	}

	var legs []Leg
	stop, l := dest, s.target
	limit := 2*s.net.NumStops() + 1
	for steps := 0; ; steps++ {
		if steps > limit {
			return nil, fmt.Errorf("predecessor chain does not reach the origin from %s", s.net.StopAt(dest).ID)
		}
		lb := s.labels[l][stop]
		if lb.kind == labelOrigin {
			break
		}
		switch lb.kind {
		case labelRide:
			legs = append(legs, s.rideLeg(lb))
			stop, l = s.idx.At(int(lb.board)).From, lb.boardLayer
		case labelWalk:
			legs = append(legs, s.walkLeg(lb.from, stop, lb.start, s.arrival[l][stop]))
			stop, l = lb.from, layerRide
		default:
			return nil, fmt.Errorf("stop %s has no predecessor", s.net.StopAt(stop).ID)
		}
	}
	slices.Reverse(legs)

	return Assemble(legs, s.Query.Departure, s.Strategy, walkingSpeed), nil
}

func (s *SearchState) rideLeg(lb label) Leg {
	board := s.idx.At(int(lb.board))
	exit := s.idx.At(int(lb.exit))

	trip := s.idx.TripConnections(board.Trip)
	i := sort.Search(len(trip), func(k int) bool { return trip[k] >= lb.board })
	j := sort.Search(len(trip), func(k int) bool { return trip[k] >= lb.exit })

	leg := Leg{
		Mode:           ModeRide,
		From:           StopPlace(s.net.StopAt(board.From)),
		To:             StopPlace(s.net.StopAt(exit.To)),
		Start:          board.Departure,
		Duration:       int(exit.Arrival - board.Departure),
		RouteID:        board.RouteID,
		RouteShortName: board.RouteShortName,
		Headsign:       board.Headsign,
		TripID:         board.TripID,
		Stops:          []string{s.net.StopAt(board.From).ID},
	}
	for k := i; k <= j && k < len(trip); k++ {
		c := s.idx.At(int(trip[k]))
		leg.Distance += geo.Distance(s.net.StopAt(c.From).Coord, s.net.StopAt(c.To).Coord)
		leg.Stops = append(leg.Stops, s.net.StopAt(c.To).ID)
	}
	return leg
}

func (s *SearchState) walkLeg(from, to int, start, arrival network.ServiceTime) Leg {
	a, b := s.net.StopAt(from), s.net.StopAt(to)
	return Leg{
		Mode:     ModeWalk,
		From:     StopPlace(a),
		To:       StopPlace(b),
		Start:    start,
		Duration: int(arrival - start),
		Distance: geo.Distance(a.Coord, b.Coord),
	}
}

// Assemble builds a journey from consecutive legs. Rides continuing the same
// trip become one leg. Adjacent walks become one direct walk between the outer
// endpoints, lasting the shorter of the direct walk and the sum of the parts.
func Assemble(legs []Leg, departure network.ServiceTime, strategy Strategy, walkingSpeed float64) *Journey {
	merged := make([]Leg, 0, len(legs))
	for _, leg := range legs {
		if len(merged) == 0 {
			merged = append(merged, leg)
			continue
		}
		prev := &merged[len(merged)-1]
		switch {
		case prev.Mode == ModeRide && leg.Mode == ModeRide && prev.TripID != "" &&
			prev.TripID == leg.TripID && prev.To.StopID == leg.From.StopID:
			prev.Duration = int(leg.End() - prev.Start)
			prev.Distance += leg.Distance
			prev.To = leg.To
			if len(leg.Stops) > 0 {
				prev.Stops = append(prev.Stops, leg.Stops[1:]...)
			}
		case prev.Mode == ModeWalk && leg.Mode == ModeWalk:
			d := geo.Distance(prev.From.Coord, leg.To.Coord)
			prev.Duration = min(geo.WalkSeconds(d, walkingSpeed), prev.Duration+leg.Duration)
			prev.Distance = d
			prev.To = leg.To
		default:
			merged = append(merged, leg)
		}
	}

	j := &Journey{
		ID:        uuid.New(),
		Legs:      merged,
		Departure: departure,
		Arrival:   departure,
		Strategy:  strategy,
	}
	for _, leg := range merged {
		j.TotalDistance += leg.Distance
	}
	if len(merged) > 0 {
		j.Arrival = merged[len(merged)-1].End()
	}
	j.TotalTime = int(j.Arrival - j.Departure)
	return j
}
