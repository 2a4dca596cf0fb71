package planner

import (
	"errors"
	"sync/atomic"

	"transit-planner/internal/routing"
)

var ErrNotReady = errors.New("planner not loaded")

// Holder publishes the current planner. Reloads swap in a whole new planner;
// queries in flight keep the one they started with.
type Holder struct {
	p atomic.Pointer[Planner]
}

func (h *Holder) Load() *Planner { return h.p.Load() }

func (h *Holder) Store(p *Planner) { h.p.Store(p) }

func (h *Holder) FindRoute(q Query) (*routing.Journey, error) {
	p := h.p.Load()
	if p == nil {
		return nil, ErrNotReady
	}
	return p.FindRoute(q)
}
