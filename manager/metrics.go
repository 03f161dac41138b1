package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/golang/glog"
)

// Metrics exposes the asset pipeline's counters over Prometheus, mirroring
// the teacher's stats-package-plus-HTTP-exposition split (stats/*_stats.go
// compute counters, a dedicated listener serves them). Every collector is
// a GaugeFunc/CounterFunc reading straight from a live Manager at scrape
// time, so there's a single source of truth (Manager.Stats() / the cache's
// own Stats()) instead of a second set of counters to keep in sync.
// `/metrics` and `/healthz` are served by `valyala/fasthttp` — already a
// direct dependency via source.HTTPSource, reused here for its own status
// endpoint.
type Metrics struct {
	registry *prometheus.Registry
}

// NewMetrics builds and registers collectors bound to m.
func NewMetrics(m *Manager) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "assetcore_loads_total", Help: "Total number of completed asset loads.",
		}, func() float64 { return float64(m.Stats().Loads) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "assetcore_bytes_loaded_total", Help: "Total bytes loaded into resident assets.",
		}, func() float64 { return float64(m.Stats().BytesLoaded) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "assetcore_gc_runs_total", Help: "Total number of gc() sweeps run.",
		}, func() float64 { return float64(m.Stats().GcRuns) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "assetcore_avg_load_time_ms", Help: "Running average load time in milliseconds.",
		}, func() float64 { return m.Stats().AvgLoadTimeMs }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "assetcore_memory_usage_bytes", Help: "Sum of MemoryUsage across resident assets.",
		}, func() float64 { return float64(m.MemoryUsage()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "assetcore_asset_count", Help: "Number of registered assets (any state).",
		}, func() float64 { return float64(m.AssetCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "assetcore_cache_hits_total", Help: "Combined memory+disk cache hits.",
		}, func() float64 { return float64(m.Cache.Stats().MemoryHits + m.Cache.Stats().DiskHits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "assetcore_cache_misses_total", Help: "Two-level cache misses.",
		}, func() float64 { return float64(m.Cache.Stats().Misses) }),
	)
	return &Metrics{registry: reg}
}

// ServeMetrics starts a fasthttp listener exposing "/metrics" (Prometheus
// text exposition, via promhttp adapted onto fasthttp) and "/healthz"
// (plain 200 OK while healthy returns true, 503 otherwise).
func ServeMetrics(addr string, m *Metrics, healthy func() bool) (*fasthttp.Server, error) {
	promHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case "/metrics":
				promHandler(ctx)
			case "/healthz":
				if healthy == nil || healthy() {
					ctx.SetStatusCode(fasthttp.StatusOK)
					ctx.SetBodyString("ok")
					return
				}
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				ctx.SetBodyString("not ready")
			default:
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
	}

	go func() {
		if err := srv.ListenAndServe(addr); err != nil {
			glog.Errorf("manager: metrics listener on %s stopped: %v", addr, err)
		}
	}()
	glog.Infof("manager: serving /metrics and /healthz on %s", addr)
	return srv, nil
}
