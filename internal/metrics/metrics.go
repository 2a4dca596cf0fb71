package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Queries       *prometheus.CounterVec // labels: strategy, code
	QueryDuration *prometheus.HistogramVec
	Scanned       prometheus.Histogram
	Settled       prometheus.Histogram

	Stops       prometheus.Gauge
	Connections prometheus.Gauge
	Footpaths   prometheus.Gauge
	LastReload  prometheus.Gauge // unix seconds

	Reloads    *prometheus.CounterVec // reason label: startup|update|service_day
	ReloadErrs prometheus.Counter

	NATSRequests  prometheus.Counter
	NATSReplyErrs prometheus.Counter
	NATSConnected prometheus.Gauge

	WalkingSpeed   prometheus.Gauge
	MaxWalkRadius  prometheus.Gauge
	ReloadInterval prometheus.Gauge // seconds
}

func NewCollector(walkingSpeed, maxWalkRadius float64, reloadInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_queries_total",
			Help: "Route queries by strategy and result code.",
		}, []string{"strategy", "code"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planner_query_duration_seconds",
			Help:    "Time spent answering a route query.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"strategy"}),
		Scanned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_connections_scanned",
			Help:    "Connections inspected per connection scan query.",
			Buckets: prometheus.ExponentialBuckets(16, 4, 10),
		}),
		Settled: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_labels_settled",
			Help:    "Labels settled per label-setting query.",
			Buckets: prometheus.ExponentialBuckets(16, 4, 10),
		}),
		Stops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_network_stops",
			Help: "Stops in the loaded network.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_network_connections",
			Help: "Elementary connections in the loaded network.",
		}),
		Footpaths: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_network_footpaths",
			Help: "Directed footpaths in the loaded network.",
		}),
		LastReload: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_last_reload_timestamp_seconds",
			Help: "Unix time of the last successful network build.",
		}),
		Reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_reloads_total",
			Help: "Successful network builds.",
		}, []string{"reason"}),
		ReloadErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_reload_errors_total",
			Help: "Failed network rebuilds; the previous network stays active.",
		}),
		NATSRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_nats_requests_total",
			Help: "Route requests received over NATS.",
		}),
		NATSReplyErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_nats_reply_errors_total",
			Help: "NATS replies that could not be sent.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		WalkingSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_walking_speed_mps",
			Help: "Configured walking speed.",
		}),
		MaxWalkRadius: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_max_walk_radius_meters",
			Help: "Configured radius for synthesized footpaths.",
		}),
		ReloadInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_reload_interval_seconds",
			Help: "Network reload check interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Queries, c.QueryDuration, c.Scanned, c.Settled,
		c.Stops, c.Connections, c.Footpaths, c.LastReload,
		c.Reloads, c.ReloadErrs,
		c.NATSRequests, c.NATSReplyErrs, c.NATSConnected,
		c.WalkingSpeed, c.MaxWalkRadius, c.ReloadInterval,
	)

	c.WalkingSpeed.Set(walkingSpeed)
	c.MaxWalkRadius.Set(maxWalkRadius)
	c.ReloadInterval.Set(reloadInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
