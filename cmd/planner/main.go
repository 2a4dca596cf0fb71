package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"transit-planner/internal/config"
	"transit-planner/internal/httpapi"
	"transit-planner/internal/metrics"
	"transit-planner/internal/natsapi"
	"transit-planner/internal/network"
	"transit-planner/internal/planner"
	"transit-planner/internal/routing"
	"transit-planner/internal/source"
	"transit-planner/internal/transfer"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.WalkingSpeed, cfg.MaxWalkRadius, cfg.ReloadInterval)
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	src := source.Source{
		DatabaseURL:       cfg.DatabaseURL,
		GTFSZip:           cfg.GTFSZip,
		City:              cfg.City,
		ServiceDateFilter: cfg.ServiceDateFilter,
		Location:          cfg.Location,
	}
	opts := plannerOptions(cfg)

	var holder planner.Holder
	version, err := reload(ctx, &holder, src, opts, mcol, "startup")
	if err != nil {
		if errors.Is(err, network.ErrDataLoad) {
			log.Fatalf("timetable is invalid: %v", err)
		}
		log.Fatalf("initial load failed: %v", err)
	}

	// HTTP API
	var metricsHandler http.Handler
	if mcol != nil {
		metricsHandler = mcol.Handler()
	}
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewHandler(&holder, metricsHandler, cfg.Location).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("http listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// NATS request/reply listener (optional)
	var natsSrv *natsapi.Server
	if cfg.NATSURL != "" {
		nm := wrapNATSMetrics(mcol)
		nc, err := natsapi.Connect(cfg.NATSURL, nm)
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer nc.Close()
		natsSrv, err = natsapi.Serve(nc, cfg.NATSSubject, cfg.NATSQueue, &holder, nm)
		if err != nil {
			log.Fatalf("nats subscribe error: %v", err)
		}
	}

	// Periodic reload: a new city import, a rewritten zip or a new service day
	done := make(chan struct{})
	go func() {
		defer close(done)
		if cfg.ReloadInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.ReloadInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			next, _, err := src.Version(ctx, time.Now())
			if err != nil {
				log.Printf("source check failed: %v; keeping %s", err, version)
				continue
			}
			if next == version {
				continue
			}
			log.Printf("timetable changed: %s -> %s", version, next)
			v, err := reload(ctx, &holder, src, opts, mcol, reloadReason(version, next))
			if err != nil {
				if mcol != nil {
					mcol.ReloadErrs.Inc()
				}
				log.Printf("reload failed: %v; keeping %s", err, version)
				continue
			}
			version = v
		}
	}()

	// Block until context cancelled
	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if natsSrv != nil {
		natsSrv.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	<-done
	log.Println("shutdown complete")
}

// reload loads the current timetable, builds a planner and publishes it. The
// held planner is left untouched on failure.
func reload(ctx context.Context, holder *planner.Holder, src source.Source, opts planner.Options, mcol *metrics.Collector, reason string) (string, error) {
	snap, err := src.Load(ctx, time.Now())
	if err != nil {
		return "", err
	}
	opts.ServiceDay = snap.ServiceDay
	p, err := planner.New(ctx, snap.Feed, snap.Name, opts, wrapPlannerMetrics(mcol))
	if err != nil {
		return "", err
	}
	holder.Store(p)
	if mcol != nil {
		mcol.Reloads.WithLabelValues(reason).Inc()
		mcol.LastReload.SetToCurrentTime()
	}
	log.Printf("serving timetable %s", snap.Version)
	return snap.Version, nil
}

// reloadReason labels a version change: service_day when only the day of a
// database timetable moved, update otherwise.
func reloadReason(prev, next string) string {
	if strings.HasPrefix(prev, "db:") {
		p, _, _ := strings.Cut(prev, "@")
		n, _, _ := strings.Cut(next, "@")
		if p == n {
			return "service_day"
		}
	}
	return "update"
}

func plannerOptions(cfg *config.Config) planner.Options {
	return planner.Options{
		Strategy:     routing.Strategy(cfg.Strategy),
		AccessRadius: cfg.AccessRadius,
		WalkingSpeed: cfg.WalkingSpeed,
		Routing: routing.Options{
			MaxJourneySeconds: int(cfg.MaxJourney / time.Second),
			MaxVehicleSpeed:   cfg.MaxVehicleSpeed,
		},
		Transfer: transfer.Options{
			Mode:      transfer.Mode(cfg.TransferMode),
			MaxRadius: cfg.MaxWalkRadius,
			Workers:   cfg.BuildWorkers,
		},
	}
}

// wrapPlannerMetrics adapts our Collector to the planner.Metrics interface.
func wrapPlannerMetrics(c *metrics.Collector) planner.Metrics {
	if c == nil {
		return nil
	}
	return &plannerMetrics{c: c}
}

type plannerMetrics struct{ c *metrics.Collector }

func (p *plannerMetrics) QueryObserve(strategy routing.Strategy, code string, d time.Duration, stats routing.Stats) {
	p.c.Queries.WithLabelValues(string(strategy), code).Inc()
	p.c.QueryDuration.WithLabelValues(string(strategy)).Observe(d.Seconds())
	if stats.Scanned > 0 {
		p.c.Scanned.Observe(float64(stats.Scanned))
	}
	if stats.Settled > 0 {
		p.c.Settled.Observe(float64(stats.Settled))
	}
}

func (p *plannerMetrics) NetworkSet(stops, connections, footpaths int) {
	p.c.Stops.Set(float64(stops))
	p.c.Connections.Set(float64(connections))
	p.c.Footpaths.Set(float64(footpaths))
}

// wrapNATSMetrics adapts our Collector to the natsapi.Metrics interface.
func wrapNATSMetrics(c *metrics.Collector) natsapi.Metrics {
	if c == nil {
		return nil
	}
	return &natsMetrics{c: c}
}

type natsMetrics struct{ c *metrics.Collector }

func (n *natsMetrics) NATSRequestInc()  { n.c.NATSRequests.Inc() }
func (n *natsMetrics) NATSReplyErrInc() { n.c.NATSReplyErrs.Inc() }
func (n *natsMetrics) NATSSetConnected(b bool) {
	if b {
		n.c.NATSConnected.Set(1)
	} else {
		n.c.NATSConnected.Set(0)
	}
}
