// Package telemetry provides application-level observability for the properties backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<PVQ_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15–60 seconds.  It is NOT served by the Gin router and
// is therefore absent from the public API surface.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Evidence confirmation and inspection lifecycle counters
//   - Outbox job duration and outcome counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/inspections/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as inspection or evidence IDs.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening:
//
//	import _ "github.com/proveniq/properties-backend/internal/telemetry"
//
// Or import it directly and use an exported var:
//
//	telemetry.EvidenceConfirmationsTotal.WithLabelValues(source).Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /api/v1/inspections/:id/evidence/confirm),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Inspection lifecycle metrics — recorded by the inspection service.
//
// EvidenceConfirmationsTotal is a CounterVec with label {source} ("tenant",
// "landlord", "vendor", or "system") incremented each time an evidence upload is
// confirmed against the object store.  Idempotent replays of an already-confirmed
// upload do not count.
//
// Example PromQL queries:
//   - Confirmation rate by source:  sum by (source) (rate(evidence_confirmations_total[1h]))
//
// InspectionSubmissionsTotal is a CounterVec with label {inspection_type}
// ("move_in", "move_out", "periodic", "pre_stay", "post_stay") incremented when an
// inspection is submitted and its content hash is locked.
//
// Example PromQL queries:
//   - Submissions per day:  sum(increase(inspection_submissions_total[24h]))
//
// InspectionSignaturesTotal is a CounterVec with label {role} ("TENANT" or
// "LANDLORD_ORG_MEMBER") incremented per recorded signature.  A sustained gap
// between tenant and landlord signature rates points at stalled lease sign-offs.
//
// Example PromQL queries:
//   - Signatures by role:  sum by (role) (rate(inspection_signatures_total[24h]))
var (
	EvidenceConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evidence_confirmations_total",
			Help: "Total number of confirmed evidence uploads, by capture source.",
		},
		[]string{"source"},
	)

	InspectionSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspection_submissions_total",
			Help: "Total number of submitted inspections, by inspection type.",
		},
		[]string{"inspection_type"},
	)

	InspectionSignaturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspection_signatures_total",
			Help: "Total number of recorded inspection signatures, by signer role.",
		},
		[]string{"role"},
	)
)

// Outbox job metrics — recorded by the background worker around each handler run.
//
// OutboxJobDuration is a HistogramVec with label {job_type} using the default
// Prometheus buckets (5 ms–10 s).  Each observation covers one handler invocation,
// successful or not.
//
// Example PromQL queries:
//   - p95 job duration:  histogram_quantile(0.95, sum by (job_type, le) (rate(outbox_job_duration_seconds_bucket[1h])))
//
// OutboxJobsTotal is a CounterVec with labels {job_type, outcome} where outcome is
// one of "completed", "retried", or "dead_lettered".  An alert on
// rate(outbox_jobs_total{outcome="dead_lettered"}[1h]) > 0 is recommended: dead
// letters require operator intervention.
var (
	OutboxJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outbox_job_duration_seconds",
			Help:    "Duration of a single outbox job handler run, by job type.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job_type"},
	)

	OutboxJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_jobs_total",
			Help: "Total number of finished outbox job runs, by job type and outcome.",
		},
		[]string{"job_type", "outcome"},
	)
)

// Outcome label values for OutboxJobsTotal.
const (
	JobOutcomeCompleted    = "completed"
	JobOutcomeRetried      = "retried"
	JobOutcomeDeadLettered = "dead_lettered"
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool.  It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <PVQ_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main.go:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
