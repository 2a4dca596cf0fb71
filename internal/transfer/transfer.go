package transfer

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sort"
	"time"

	"github.com/kyroy/kdtree"
	"github.com/kyroy/kdtree/kdrange"
	"golang.org/x/sync/errgroup"

	"transit-planner/internal/geo"
	"transit-planner/internal/network"
)

type Mode string

const (
	ModeExplicit    Mode = "explicit"
	ModeSynthesized Mode = "synthesized"
	ModeBoth        Mode = "both"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeExplicit, ModeSynthesized, ModeBoth:
		return m, nil
	case "":
		return ModeBoth, nil
	default:
		return "", fmt.Errorf("invalid transfer mode: %q", s)
	}
}

type Options struct {
	Mode Mode
	// MaxRadius bounds synthesized footpaths, in meters.
	MaxRadius    float64
	WalkingSpeed float64
	// Workers caps the synthesis fan-out; <= 0 means GOMAXPROCS.
	Workers int
}

// Nearby is a stop found by a radius search.
type Nearby struct {
	Stop     network.Stop
	Distance float64
}

// Service answers walking questions between stops. It is read-only after
// Build and safe for concurrent use.
type Service struct {
	net      *network.Network
	opts     Options
	adj      [][]network.Footpath
	tree     *kdtree.KDTree
	maxSpeed float64
	count    int
}

type stopPoint struct {
	idx      int
	lat, lon float64
}

func (p stopPoint) Dimensions() int { return 2 }

func (p stopPoint) Dimension(i int) float64 {
	if i == 0 {
		return p.lat
	}
	return p.lon
}

// Build derives the footpath graph of net according to opts.
func Build(ctx context.Context, net *network.Network, opts Options) (*Service, error) {
	if opts.Mode == "" {
		opts.Mode = ModeBoth
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.MaxRadius < 0 {
		return nil, fmt.Errorf("invalid max walk radius: %v", opts.MaxRadius)
	}
	if opts.WalkingSpeed <= 0 {
		opts.WalkingSpeed = geo.DefaultWalkingSpeed
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	stops := net.Stops()
	points := make([]kdtree.Point, 0, len(stops))
	for _, s := range stops {
		points = append(points, stopPoint{idx: s.Index, lat: s.Coord.Lat, lon: s.Coord.Lon})
	}
	s := &Service{
		net:  net,
		opts: opts,
		adj:  make([][]network.Footpath, len(stops)),
		tree: kdtree.New(points),
	}

	started := time.Now()
	best := make([]map[int]int, len(stops))

	if opts.Mode == ModeSynthesized || opts.Mode == ModeBoth {
		if err := s.synthesize(ctx, best); err != nil {
			return nil, err
		}
	}
	if opts.Mode == ModeExplicit || opts.Mode == ModeBoth {
		for _, fp := range net.Footpaths() {
			secs := max(fp.Seconds, 1)
			if best[fp.From] == nil {
				best[fp.From] = make(map[int]int)
			}
			if cur, ok := best[fp.From][fp.To]; !ok || secs < cur {
				best[fp.From][fp.To] = secs
			}
		}
	}

	for from, m := range best {
		if len(m) == 0 {
			continue
		}
		fps := make([]network.Footpath, 0, len(m))
		for to, secs := range m {
			fps = append(fps, network.Footpath{From: from, To: to, Seconds: secs})
			d := geo.Distance(stops[from].Coord, stops[to].Coord)
			if v := d / float64(secs); v > s.maxSpeed {
				s.maxSpeed = v
			}
		}
		sort.Slice(fps, func(i, j int) bool { return fps[i].To < fps[j].To })
		s.adj[from] = fps
		s.count += len(fps)
	}

	log.Printf("transfer: %d footpaths over %d stops (mode=%s radius=%.0fm) in %s",
		s.count, len(stops), opts.Mode, opts.MaxRadius, time.Since(started).Round(time.Millisecond))
	return s, nil
}

// synthesize fills best with radius-based footpaths. Each task writes only
// the slot of its own origin stop.
func (s *Service) synthesize(ctx context.Context, best []map[int]int) error {
	stops := s.net.Stops()

	// stops grouped under their parent station (or themselves when they are one)
	groups := make(map[string][]int)
	for _, st := range stops {
		key := st.Parent
		if key == "" {
			key = st.ID
		}
		groups[key] = append(groups[key], st.Index)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i := range stops {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			origin := stops[i]
			m := make(map[int]int)
			for _, nb := range s.NearbyStops(origin.Coord, s.opts.MaxRadius) {
				if nb.Stop.Index == i {
					continue
				}
				m[nb.Stop.Index] = max(geo.WalkSeconds(nb.Distance, s.opts.WalkingSpeed), 1)
			}
			for _, key := range []string{origin.Parent, origin.ID} {
				for _, j := range groups[key] {
					if j == i || !network.SameStation(origin, stops[j]) {
						continue
					}
					if _, ok := m[j]; !ok {
						d := geo.Distance(origin.Coord, stops[j].Coord)
						m[j] = max(geo.WalkSeconds(d, s.opts.WalkingSpeed), 1)
					}
				}
			}
			if len(m) > 0 {
				best[i] = m
			}
			return nil
		})
	}
	return g.Wait()
}

// Footpaths returns the footpaths leaving stop, ordered by destination.
func (s *Service) Footpaths(stop int) []network.Footpath {
	if stop < 0 || stop >= len(s.adj) {
		return nil
	}
	return s.adj[stop]
}

// WalkTime returns the footpath duration from a to b.
func (s *Service) WalkTime(a, b int) (int, bool) {
	fps := s.Footpaths(a)
	i := sort.Search(len(fps), func(i int) bool { return fps[i].To >= b })
	if i < len(fps) && fps[i].To == b {
		return fps[i].Seconds, true
	}
	return 0, false
}

func (s *Service) CanWalk(a, b int) bool {
	_, ok := s.WalkTime(a, b)
	return ok
}

// NearbyStops returns every stop within radius meters of c, boundary
// included, nearest first.
func (s *Service) NearbyStops(c geo.Coord, radius float64) []Nearby {
	if radius < 0 {
		return nil
	}
	var candidates []int
	if box, ok := geo.BoundingBox(c, radius); ok {
		for _, p := range s.tree.RangeSearch(kdrange.New(box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)) {
			candidates = append(candidates, p.(stopPoint).idx)
		}
	} else {
		for i := range s.net.Stops() {
			candidates = append(candidates, i)
		}
	}

	var out []Nearby
	for _, idx := range candidates {
		st := s.net.StopAt(idx)
		if d := geo.Distance(c, st.Coord); d <= radius {
			out = append(out, Nearby{Stop: st, Distance: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Stop.Index < out[j].Stop.Index
	})
	return out
}

// Nearest returns the closest boardable stop within radius meters of c.
func (s *Service) Nearest(c geo.Coord, radius float64) (Nearby, error) {
	for _, nb := range s.NearbyStops(c, radius) {
		if nb.Stop.Kind.Boardable() {
			return nb, nil
		}
	}
	return Nearby{}, fmt.Errorf("%w: no boardable stop within %.0fm of %s", network.ErrStopNotFound, radius, c)
}

// MaxSpeed is the fastest straight-line speed of any footpath in m/s.
func (s *Service) MaxSpeed() float64 { return s.maxSpeed }

func (s *Service) WalkingSpeed() float64 { return s.opts.WalkingSpeed }

func (s *Service) Count() int { return s.count }
