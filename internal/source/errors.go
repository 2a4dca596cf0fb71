package source

import "errors"

// ErrUnavailable marks a source that could not be reached at all, as opposed
// to one that was reached but held bad data.
var ErrUnavailable = errors.New("timetable source unavailable")
