package network

import (
	"fmt"
	"math"

	"transit-planner/internal/gtfs"
)

// ServiceTime is seconds since the service day's midnight. Trips running past
// midnight keep counting, so values above 86400 are valid.
type ServiceTime int

// Unreachable is the arrival of a stop no search has reached.
const Unreachable ServiceTime = math.MaxInt32

// ParseServiceTime accepts HH:MM:SS or HH:MM with hours >= 24 allowed.
func ParseServiceTime(s string) (ServiceTime, error) {
	sec, err := gtfs.ParseDaySeconds(s)
	if err != nil {
		return 0, err
	}
	if int64(sec) >= int64(Unreachable) {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return ServiceTime(sec), nil
}

// Add returns t shifted by sec seconds, saturating at Unreachable.
func (t ServiceTime) Add(sec int) ServiceTime {
	if t == Unreachable || int64(t)+int64(sec) >= int64(Unreachable) {
		return Unreachable
	}
	return t + ServiceTime(sec)
}

func (t ServiceTime) String() string {
	if t == Unreachable {
		return "unreachable"
	}
	return gtfs.FormatDaySeconds(int(t))
}
