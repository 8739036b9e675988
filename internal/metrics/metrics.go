package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "position_fetchers"

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Fetch metrics ──────────────────────────────────────────────────────

var (
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "total",
		Help:      "Total number of fetch attempts per fetcher.",
	}, []string{"fetcher", "status"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "duration_seconds",
		Help:      "Duration of one fetch per fetcher in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"fetcher"})

	FetchLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful fetch per fetcher.",
	}, []string{"fetcher"})

	EntriesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "entries_dropped_total",
		Help:      "Catalog entries skipped while building positions.",
	}, []string{"fetcher", "reason"})

	SinkErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "sink_errors_total",
		Help:      "Snapshot sink failures (store, cache, publisher).",
	}, []string{"sink"})
)

// ── Upstream metrics ───────────────────────────────────────────────────

var (
	VendorRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "vendor",
		Name:      "requests_total",
		Help:      "Vendor REST requests by vendor and status code.",
	}, []string{"vendor", "status"})

	MulticallRoundTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "multicall",
		Name:      "round_trips_total",
		Help:      "aggregate3 round trips per network.",
	}, []string{"network", "status"})

	MulticallCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "multicall",
		Name:      "calls_total",
		Help:      "Contract calls sent through aggregate3 per network.",
	}, []string{"network"})

	MulticallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "multicall",
		Name:      "duration_seconds",
		Help:      "aggregate3 round trip latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"network"})
)

// ── Business metrics ───────────────────────────────────────────────────

var (
	PositionsCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "business",
		Name:      "positions",
		Help:      "Number of positions in the latest snapshot per fetcher.",
	}, []string{"fetcher"})

	Liquidity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "business",
		Name:      "liquidity_usd",
		Help:      "Total liquidity of the latest snapshot per fetcher.",
	}, []string{"fetcher", "include_in_tvl"})
)
