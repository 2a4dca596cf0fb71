package network

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"transit-planner/internal/geo"
	"transit-planner/internal/gtfs"
)

var (
	ErrStopNotFound = errors.New("stop not found")
	ErrDataLoad     = errors.New("timetable data load failed")
)

// Connection is one vehicle hop between two consecutive stops of a trip.
type Connection struct {
	// Trip is the dense trip index, TripID the feed identifier.
	Trip           int
	TripID         string
	RouteID        string
	RouteShortName string
	Headsign       string
	From, To       int
	Departure      ServiceTime
	Arrival        ServiceTime
	Sequence       int
}

// Footpath is a directed walking edge between two stops.
type Footpath struct {
	From, To int
	Seconds  int
}

// Network is the immutable stop/connection graph of one timetable.
type Network struct {
	stops     []Stop
	byID      map[string]int
	conns     []Connection
	footpaths []Footpath
	tripIDs   []string
}

// Build turns an ingested feed into a Network. Errors wrap ErrDataLoad.
func Build(feed *gtfs.Feed) (*Network, error) {
	if feed == nil {
		return nil, fmt.Errorf("%w: nil feed", ErrDataLoad)
	}
	n := &Network{byID: make(map[string]int, len(feed.Stops))}

	for _, s := range feed.Stops {
		if s.StopID == "" {
			return nil, fmt.Errorf("%w: stop with empty id", ErrDataLoad)
		}
		if _, dup := n.byID[s.StopID]; dup {
			continue
		}
		c := geo.Coord{Lat: s.StopLat, Lon: s.StopLon}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%w: stop %q: %v", ErrDataLoad, s.StopID, err)
		}
		idx := len(n.stops)
		n.byID[s.StopID] = idx
		n.stops = append(n.stops, Stop{
			ID:     s.StopID,
			Name:   s.StopName,
			Coord:  c,
			Kind:   KindFromLocationType(s.LocationType),
			Parent: s.ParentStation,
			Index:  idx,
		})
	}

	routes := make(map[string]gtfs.Route, len(feed.Routes))
	for _, r := range feed.Routes {
		routes[r.RouteID] = r
	}
	trips := make(map[string]gtfs.Trip, len(feed.Trips))
	for _, t := range feed.Trips {
		trips[t.TripID] = t
	}

	// group stop times by trip, keeping first-seen trip order
	byTrip := make(map[string][]gtfs.StopTime)
	var order []string
	for _, st := range feed.StopTimes {
		if _, ok := n.byID[st.StopID]; !ok {
			return nil, fmt.Errorf("%w: trip %q references unknown stop %q", ErrDataLoad, st.TripID, st.StopID)
		}
		if st.ArrivalSec < 0 || st.DepartureSec < 0 {
			return nil, fmt.Errorf("%w: trip %q stop %q: negative time", ErrDataLoad, st.TripID, st.StopID)
		}
		if st.DepartureSec < st.ArrivalSec {
			return nil, fmt.Errorf("%w: trip %q stop %q: departs before it arrives", ErrDataLoad, st.TripID, st.StopID)
		}
		if _, seen := byTrip[st.TripID]; !seen {
			order = append(order, st.TripID)
		}
		byTrip[st.TripID] = append(byTrip[st.TripID], st)
	}

	for _, tripID := range order {
		sts := byTrip[tripID]
		if len(sts) < 2 {
			continue
		}
		sort.SliceStable(sts, func(i, j int) bool { return sts[i].StopSequence < sts[j].StopSequence })

		trip := trips[tripID]
		route := routes[trip.RouteID]
		tripIdx := len(n.tripIDs)
		n.tripIDs = append(n.tripIDs, tripID)

		for i := 0; i+1 < len(sts); i++ {
			a, b := sts[i], sts[i+1]
			if b.ArrivalSec < a.DepartureSec {
				return nil, fmt.Errorf("%w: trip %q arrives at seq %d before leaving seq %d",
					ErrDataLoad, tripID, b.StopSequence, a.StopSequence)
			}
			n.conns = append(n.conns, Connection{
				Trip:           tripIdx,
				TripID:         tripID,
				RouteID:        trip.RouteID,
				RouteShortName: route.RouteShortName,
				Headsign:       trip.TripHeadsign,
				From:           n.byID[a.StopID],
				To:             n.byID[b.StopID],
				Departure:      ServiceTime(a.DepartureSec),
				Arrival:        ServiceTime(b.ArrivalSec),
				Sequence:       a.StopSequence,
			})
		}
	}

	skipped := 0
	for _, t := range feed.Transfers {
		from, okFrom := n.byID[t.FromStopID]
		to, okTo := n.byID[t.ToStopID]
		if !okFrom || !okTo {
			skipped++
			continue
		}
		if from == to {
			continue
		}
		if t.Seconds < 0 {
			return nil, fmt.Errorf("%w: transfer %q -> %q: negative time", ErrDataLoad, t.FromStopID, t.ToStopID)
		}
		n.footpaths = append(n.footpaths, Footpath{From: from, To: to, Seconds: t.Seconds})
		if t.Bidirectional {
			n.footpaths = append(n.footpaths, Footpath{From: to, To: from, Seconds: t.Seconds})
		}
	}
	if skipped > 0 {
		log.Printf("network: skipped %d transfers referencing unknown stops", skipped)
	}

	return n, nil
}

// Stop looks a stop up by its feed id.
func (n *Network) Stop(id string) (Stop, error) {
	idx, ok := n.byID[id]
	if !ok {
		return Stop{}, fmt.Errorf("%w: %q", ErrStopNotFound, id)
	}
	return n.stops[idx], nil
}

// StopAt returns the stop with dense index i.
func (n *Network) StopAt(i int) Stop { return n.stops[i] }

// Stops returns every stop ordered by index. The slice must not be modified.
func (n *Network) Stops() []Stop { return n.stops }

func (n *Network) NumStops() int { return len(n.stops) }

// Connections returns the connections in build order. The slice must not be modified.
func (n *Network) Connections() []Connection { return n.conns }

// Footpaths returns the explicit footpaths from the feed's transfer records.
func (n *Network) Footpaths() []Footpath { return n.footpaths }

func (n *Network) NumTrips() int { return len(n.tripIDs) }

func (n *Network) TripID(trip int) string { return n.tripIDs[trip] }
