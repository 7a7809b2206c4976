package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP requests served by the admin surface.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgen_http_requests_total",
			Help: "Total number of admin HTTP requests",
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardgen_http_request_duration_seconds",
			Help:    "Admin HTTP request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"method", "path"},
	)

	// Credential pool.
	CredentialRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgen_credential_rotations_total",
			Help: "Total number of credential rotations",
		},
		[]string{"reason"},
	)

	CredentialFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgen_credential_failures_total",
			Help: "Total number of failures recorded against credentials",
		},
		[]string{"kind"},
	)

	CredentialsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardgen_credentials",
			Help: "Number of registered credentials",
		},
	)

	CredentialsUsable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardgen_credentials_usable",
			Help: "Number of credentials that are active and not cooling down",
		},
	)

	// Generation gateway.
	GenerationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgen_generation_requests_total",
			Help: "Total number of upstream generation attempts",
		},
		[]string{"status"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardgen_generation_duration_seconds",
			Help:    "Upstream generation latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"model"},
	)

	GenerationRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgen_generation_retries_total",
			Help: "Total number of generation retries",
		},
		[]string{"mode"},
	)

	// Batches.
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgen_batch_items_total",
			Help: "Total number of batch items processed",
		},
		[]string{"operation", "result"},
	)

	BatchRunsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cardgen_batch_runs_active",
			Help: "Number of batch runs currently executing",
		},
		[]string{"operation"},
	)

	BatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgen_batch_runs_total",
			Help: "Total number of finished batch runs",
		},
		[]string{"operation", "outcome"},
	)

	BackgroundTasksRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cardgen_background_tasks_running",
			Help: "Background tasks currently running, by kind",
		},
		[]string{"kind"},
	)

	BackgroundTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgen_background_tasks_total",
			Help: "Finished background tasks, by kind and final status",
		},
		[]string{"kind", "status"},
	)
)

// StatusClass buckets an HTTP status code into "2xx", "4xx" and so on.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
