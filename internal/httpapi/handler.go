package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"transit-planner/internal/geo"
	"transit-planner/internal/planner"
)

// DefaultNearbyRadius applies to /stops/nearby when no radius is given.
const DefaultNearbyRadius = 500.0

// Handler serves the planner over HTTP.
type Handler struct {
	holder  *planner.Holder
	metrics http.Handler
	loc     *time.Location
	now     func() time.Time
}

// NewHandler creates a handler for the planner currently held by h. A nil
// metrics handler leaves /metrics unregistered. loc is the timetable's zone,
// used when a request carries no departure.
func NewHandler(h *planner.Holder, metrics http.Handler, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{holder: h, metrics: metrics, loc: loc, now: time.Now}
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/route", h.handleRoute).Methods("GET")
	r.HandleFunc("/route", h.handleRoutePost).Methods("POST")
	r.HandleFunc("/stops/nearby", h.handleNearby).Methods("GET")
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics).Methods("GET")
	}
}

// Router returns a router with all routes and middleware installed.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)
	return r
}

type NearbyStop struct {
	StopID   string    `json:"stopId"`
	Name     string    `json:"name"`
	Kind     string    `json:"kind"`
	Coord    geo.Coord `json:"coord"`
	Distance float64   `json:"distance"`
}

type HealthResponse struct {
	Status string        `json:"status"`
	Info   *planner.Info `json:"info,omitempty"`
}

func (h *Handler) handleRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := planner.Request{
		Departure: q.Get("departure"),
		Strategy:  q.Get("strategy"),
	}
	params := []struct {
		name string
		dst  *float64
	}{
		{"fromLat", &req.FromLat}, {"fromLon", &req.FromLon},
		{"toLat", &req.ToLat}, {"toLon", &req.ToLon},
	}
	for _, p := range params {
		v, err := parseFloat(q.Get(p.name))
		if err != nil {
			h.writeResponse(w, planner.NewResponse(nil, fmt.Errorf("%w: %s: %v", planner.ErrInvalidRequest, p.name, err)))
			return
		}
		*p.dst = v
	}
	if req.Departure == "" {
		p := h.holder.Load()
		if p == nil {
			h.writeResponse(w, planner.NewResponse(nil, planner.ErrNotReady))
			return
		}
		req.Departure = p.ServiceTimeAt(h.now(), h.loc).String()
	}
	h.route(w, req)
}

func (h *Handler) handleRoutePost(w http.ResponseWriter, r *http.Request) {
	var req planner.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		h.writeResponse(w, planner.NewResponse(nil, fmt.Errorf("%w: %v", planner.ErrInvalidRequest, err)))
		return
	}
	h.route(w, req)
}

func (h *Handler) route(w http.ResponseWriter, req planner.Request) {
	q, err := req.Query()
	if err != nil {
		h.writeResponse(w, planner.NewResponse(nil, err))
		return
	}
	h.writeResponse(w, planner.NewResponse(h.holder.FindRoute(q)))
}

func (h *Handler) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := parseFloat(q.Get("lat"))
	if err != nil {
		h.writeError(w, planner.CodeInvalidRequest, "Invalid lat parameter", http.StatusBadRequest)
		return
	}
	lon, err := parseFloat(q.Get("lon"))
	if err != nil {
		h.writeError(w, planner.CodeInvalidRequest, "Invalid lon parameter", http.StatusBadRequest)
		return
	}
	radius := DefaultNearbyRadius
	if s := q.Get("radius"); s != "" {
		radius, err = strconv.ParseFloat(s, 64)
		if err != nil || radius < 0 || radius > 5000 {
			h.writeError(w, planner.CodeInvalidRequest, "Invalid radius parameter", http.StatusBadRequest)
			return
		}
	}

	p := h.holder.Load()
	if p == nil {
		h.writeResponse(w, planner.NewResponse(nil, planner.ErrNotReady))
		return
	}
	nearby, err := p.NearbyStops(geo.Coord{Lat: lat, Lon: lon}, radius)
	if err != nil {
		h.writeResponse(w, planner.NewResponse(nil, err))
		return
	}
	data := make([]NearbyStop, len(nearby))
	for i, n := range nearby {
		data[i] = NearbyStop{
			StopID:   n.Stop.ID,
			Name:     n.Stop.Name,
			Kind:     n.Stop.Kind.String(),
			Coord:    n.Stop.Coord,
			Distance: n.Distance,
		}
	}
	h.writeJSON(w, http.StatusOK, data)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	p := h.holder.Load()
	if p == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "loading"})
		return
	}
	info := p.Info()
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Info: &info})
}

func (h *Handler) writeResponse(w http.ResponseWriter, resp planner.Response) {
	status := http.StatusOK
	if resp.Error != nil {
		status = statusFor(resp.Error.Code)
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(w, status, planner.Response{Error: &planner.ErrorBody{Code: code, Message: message}})
}

func statusFor(code string) int {
	switch code {
	case planner.CodeInvalidCoordinate, planner.CodeInvalidRequest:
		return http.StatusBadRequest
	case planner.CodeStopNotFound, planner.CodeNoRouteFound:
		return http.StatusNotFound
	case planner.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing")
	}
	return strconv.ParseFloat(s, 64)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.RequestURI, time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
