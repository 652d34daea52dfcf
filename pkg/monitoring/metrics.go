package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Domain-specific metric collectors.
//
// These complement the generic controller-runtime metrics (reconcile counts,
// durations, work queue depth, etc.) with operator-specific state that the
// framework cannot know about.
var (
	nrfInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nrf_operator_nrf_info",
			Help: "Info-style metric for NRF discovery and phase tracking. Always 1.",
		},
		[]string{"name", "namespace", "phase"},
	)

	integrationReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nrf_operator_integration_ready",
			Help: "Whether an NRF integration has negotiated usable data (1) or not (0).",
		},
		[]string{"name", "namespace", "integration"},
	)

	certificateExpiry = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nrf_operator_certificate_expiry_timestamp_seconds",
			Help: "Unix timestamp at which the NRF certificate bundle expires.",
		},
		[]string{"name", "namespace"},
	)

	configRenderTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrf_operator_config_render_total",
			Help: "Total workload configuration renders, by outcome (changed/unchanged).",
		},
		[]string{"name", "namespace", "outcome"},
	)

	workloadRestartTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrf_operator_workload_restart_total",
			Help: "Total workload restarts triggered by config or certificate changes.",
		},
		[]string{"name", "namespace"},
	)

	webhookRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrf_operator_webhook_request_total",
			Help: "Total number of webhook admission requests.",
		},
		[]string{"operation", "resource", "result"},
	)

	webhookRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nrf_operator_webhook_request_duration_seconds",
			Help:    "Latency of webhook admission handling in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "resource"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		nrfInfo,
		integrationReady,
		certificateExpiry,
		configRenderTotal,
		workloadRestartTotal,
		webhookRequestTotal,
		webhookRequestDuration,
	)
}

// Collectors returns all registered metric collectors. This is useful for
// testing that metrics are properly registered.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		nrfInfo,
		integrationReady,
		certificateExpiry,
		configRenderTotal,
		workloadRestartTotal,
		webhookRequestTotal,
		webhookRequestDuration,
	}
}
