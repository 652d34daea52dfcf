package monitoring

import "time"

// Integration names used as metric label values.
const (
	IntegrationDatabase     = "database"
	IntegrationConfig       = "sdcore-config"
	IntegrationCertificates = "certificates"
	IntegrationLogging      = "logging"
)

// SetNRFInfo sets the info-style gauge for an NRF.
// Old phase labels are automatically cleaned up via DeletePartialMatch.
func SetNRFInfo(name, namespace, phase string) {
	nrfInfo.DeletePartialMatch(map[string]string{
		"name":      name,
		"namespace": namespace,
	})
	nrfInfo.WithLabelValues(name, namespace, phase).Set(1)
}

// SetIntegrationReady records whether an integration has negotiated
// usable data.
func SetIntegrationReady(name, namespace, integration string, ready bool) {
	v := 0.0
	if ready {
		v = 1.0
	}
	integrationReady.WithLabelValues(name, namespace, integration).Set(v)
}

// SetCertificateExpiry records the expiry instant of the active bundle.
// The zero time clears the gauge to zero (no valid bundle).
func SetCertificateExpiry(name, namespace string, notAfter time.Time) {
	if notAfter.IsZero() {
		certificateExpiry.WithLabelValues(name, namespace).Set(0)
		return
	}
	certificateExpiry.WithLabelValues(name, namespace).Set(float64(notAfter.Unix()))
}

// RecordConfigRender records the outcome of a workload config render.
func RecordConfigRender(name, namespace string, changed bool) {
	outcome := "unchanged"
	if changed {
		outcome = "changed"
	}
	configRenderTotal.WithLabelValues(name, namespace, outcome).Inc()
}

// RecordWorkloadRestart records a restart triggered by config or cert changes.
func RecordWorkloadRestart(name, namespace string) {
	workloadRestartTotal.WithLabelValues(name, namespace).Inc()
}

// RecordWebhookRequest records a webhook admission request's result and duration.
func RecordWebhookRequest(operation, resource string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	webhookRequestTotal.WithLabelValues(operation, resource, result).Inc()
	webhookRequestDuration.WithLabelValues(operation, resource).Observe(duration.Seconds())
}

// DeleteNRFMetrics removes every metric series for a deleted NRF so the
// exposition does not accumulate stale resources.
func DeleteNRFMetrics(name, namespace string) {
	labels := map[string]string{
		"name":      name,
		"namespace": namespace,
	}
	nrfInfo.DeletePartialMatch(labels)
	integrationReady.DeletePartialMatch(labels)
	certificateExpiry.DeletePartialMatch(labels)
	configRenderTotal.DeletePartialMatch(labels)
	workloadRestartTotal.DeletePartialMatch(labels)
}
