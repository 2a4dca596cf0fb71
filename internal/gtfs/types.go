package gtfs

// Feed is the timetable handed to the network builder, whatever its source
// (database import or a GTFS zip).
type Feed struct {
	Stops     []Stop
	Routes    []Route
	Trips     []Trip
	StopTimes []StopTime
	Transfers []Transfer
}

type Stop struct {
	StopID        string
	StopName      string
	StopLat       float64
	StopLon       float64
	LocationType  int // 0 stop/platform, 1 station, 2 entrance (GTFS location_type)
	ParentStation string
}

type Route struct {
	RouteID        string
	RouteShortName string
	RouteLongName  string
	RouteType      int
}

type Trip struct {
	TripID       string
	RouteID      string
	ServiceID    string
	TripHeadsign string
}

type StopTime struct {
	TripID       string
	StopID       string
	StopSequence int
	ArrivalSec   int // seconds since midnight (can exceed 24h)
	DepartureSec int // seconds since midnight (can exceed 24h)
}

// Transfer is an explicit walking link between two stops (transfers.txt or pathways).
type Transfer struct {
	FromStopID    string
	ToStopID      string
	Seconds       int
	Bidirectional bool
}
