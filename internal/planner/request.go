package planner

import (
	"fmt"
	"strings"

	"transit-planner/internal/geo"
	"transit-planner/internal/network"
	"transit-planner/internal/routing"
)

// Request is the wire form of a query shared by the HTTP and NATS transports.
type Request struct {
	FromLat   float64 `json:"fromLat"`
	FromLon   float64 `json:"fromLon"`
	ToLat     float64 `json:"toLat"`
	ToLon     float64 `json:"toLon"`
	Departure string  `json:"departure"` // HH:MM[:SS], hours may exceed 23
	Strategy  string  `json:"strategy,omitempty"`
}

func (r Request) Query() (Query, error) {
	dep, err := network.ParseServiceTime(r.Departure)
	if err != nil {
		return Query{}, fmt.Errorf("%w: departure: %v", ErrInvalidRequest, err)
	}
	var st routing.Strategy
	if s := strings.TrimSpace(strings.ToLower(r.Strategy)); s != "" {
		if st, err = routing.ParseStrategy(s); err != nil {
			return Query{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	return Query{
		From:      geo.Coord{Lat: r.FromLat, Lon: r.FromLon},
		To:        geo.Coord{Lat: r.ToLat, Lon: r.ToLon},
		Departure: dep,
		Strategy:  st,
	}, nil
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response carries either a journey or an error.
type Response struct {
	Journey *routing.Journey `json:"journey,omitempty"`
	Error   *ErrorBody       `json:"error,omitempty"`
}

func NewResponse(j *routing.Journey, err error) Response {
	if err != nil {
		return Response{Error: &ErrorBody{Code: Code(err), Message: err.Error()}}
	}
	return Response{Journey: j}
}
