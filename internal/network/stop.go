package network

import "transit-planner/internal/geo"

type StopKind int

const (
	KindStop StopKind = iota
	KindStation
	KindEntrance
	KindOther
)

// KindFromLocationType maps a GTFS location_type to a StopKind.
func KindFromLocationType(lt int) StopKind {
	switch lt {
	case 0:
		return KindStop
	case 1:
		return KindStation
	case 2:
		return KindEntrance
	default:
		return KindOther
	}
}

// Boardable reports whether vehicles can be boarded at a stop of this kind.
func (k StopKind) Boardable() bool { return k == KindStop }

func (k StopKind) String() string {
	switch k {
	case KindStop:
		return "stop"
	case KindStation:
		return "station"
	case KindEntrance:
		return "entrance"
	default:
		return "other"
	}
}

type Stop struct {
	ID     string
	Name   string
	Coord  geo.Coord
	Kind   StopKind
	Parent string
	// Index is the dense position assigned at build time.
	Index int
}

// SameStation reports whether a and b are the same stop, siblings under one
// parent station, or a station and one of its children.
func SameStation(a, b Stop) bool {
	if a.ID == b.ID {
		return true
	}
	if a.Parent != "" && a.Parent == b.Parent {
		return true
	}
	return a.Parent == b.ID || b.Parent == a.ID
}
