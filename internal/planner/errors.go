package planner

import (
	"errors"

	"transit-planner/internal/geo"
	"transit-planner/internal/network"
	"transit-planner/internal/routing"
)

// ErrInvalidRequest marks malformed transport input (bad time or strategy).
var ErrInvalidRequest = errors.New("invalid request")

const (
	CodeInvalidCoordinate = "INVALID_COORDINATE"
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeStopNotFound      = "STOP_NOT_FOUND"
	CodeNoRouteFound      = "NO_ROUTE_FOUND"
	CodeUnavailable       = "UNAVAILABLE"
	CodeInternal          = "INTERNAL"
)

// Code maps an error from FindRoute to its transport error code. A nil error
// maps to "OK".
func Code(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, geo.ErrInvalidCoordinate):
		return CodeInvalidCoordinate
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, routing.ErrInvalidDeparture):
		return CodeInvalidRequest
	case errors.Is(err, network.ErrStopNotFound):
		return CodeStopNotFound
	case errors.Is(err, routing.ErrNoRouteFound):
		return CodeNoRouteFound
	case errors.Is(err, ErrNotReady):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}
