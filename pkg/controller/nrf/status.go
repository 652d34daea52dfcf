package nrf

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
	"github.com/sdcore/nrf-operator/pkg/defaults"
)

// computeStatus derives the full NRF status from observed state. It is a
// pure function: the reported status can never drift from the gathered
// inputs because it is recomputed wholesale on every pass, never edited
// in place. Existing conditions are only consulted to preserve
// LastTransitionTime on unchanged conditions.
func computeStatus(
	nrf *sdcorev1alpha1.NRF,
	state *relationState,
	resolved defaults.Resolved,
	configHash string,
	readyReplicas int32,
) sdcorev1alpha1.NRFStatus {
	status := sdcorev1alpha1.NRFStatus{
		ObservedGeneration: nrf.Generation,
		Conditions:         append([]metav1.Condition{}, nrf.Status.Conditions...),
	}

	ready, cert, synced := desiredConditions(nrf, state, readyReplicas)
	meta.SetStatusCondition(&status.Conditions, ready)
	meta.SetStatusCondition(&status.Conditions, cert)
	meta.SetStatusCondition(&status.Conditions, synced)

	switch {
	case len(state.missing) > 0:
		status.Phase = sdcorev1alpha1.PhaseBlocked

	case len(state.waiting) > 0:
		status.Phase = sdcorev1alpha1.PhaseWaiting

	case state.certState == certExpired:
		// Renewal in progress: the last-good configuration stays active,
		// so the previously published endpoint, hash and version are
		// retained.
		status.Phase = sdcorev1alpha1.PhaseWaiting
		status.URL = nrf.Status.URL
		status.ConfigHash = nrf.Status.ConfigHash
		status.Version = nrf.Status.Version

	case readyReplicas < 1:
		status.Phase = sdcorev1alpha1.PhaseWaiting
		status.URL = PublishedURL(nrf, resolved)
		status.ConfigHash = configHash

	default:
		status.Phase = sdcorev1alpha1.PhaseReady
		status.URL = PublishedURL(nrf, resolved)
		status.ConfigHash = configHash
		status.Version = imageVersion(resolved.Image)
	}

	return status
}

// imageVersion extracts the workload version from the container image tag.
// Images pinned by digest or untagged yield an empty version.
func imageVersion(image string) string {
	rest := image
	if i := strings.LastIndex(rest, "/"); i >= 0 {
		rest = rest[i+1:]
	}
	if i := strings.Index(rest, "@"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		return rest[i+1:]
	}
	return ""
}

func desiredConditions(
	nrf *sdcorev1alpha1.NRF,
	state *relationState,
	readyReplicas int32,
) (ready, cert, synced metav1.Condition) {
	ready = metav1.Condition{
		Type:               sdcorev1alpha1.ConditionReady,
		ObservedGeneration: nrf.Generation,
	}
	cert = metav1.Condition{
		Type:               sdcorev1alpha1.ConditionCertificate,
		ObservedGeneration: nrf.Generation,
	}
	synced = metav1.Condition{
		Type:               sdcorev1alpha1.ConditionConfigSynced,
		ObservedGeneration: nrf.Generation,
	}

	switch state.certState {
	case certValid:
		cert.Status = metav1.ConditionTrue
		cert.Reason = sdcorev1alpha1.ReasonReconciled
		cert.Message = "Certificate bundle is valid"
	case certExpired:
		cert.Status = metav1.ConditionFalse
		cert.Reason = sdcorev1alpha1.ReasonCertificateExpired
		cert.Message = "Certificate bundle is expired, renewal requested"
	default:
		cert.Status = metav1.ConditionFalse
		cert.Reason = sdcorev1alpha1.ReasonCertificateAbsent
		cert.Message = "Certificate bundle is absent or incomplete"
	}

	switch {
	case len(state.missing) > 0:
		ready.Status = metav1.ConditionFalse
		ready.Reason = sdcorev1alpha1.ReasonMissingIntegration
		ready.Message = fmt.Sprintf(
			"Missing integration(s): %s", strings.Join(state.missing, ", "))

		synced.Status = metav1.ConditionFalse
		synced.Reason = sdcorev1alpha1.ReasonMissingIntegration
		synced.Message = "Configuration not rendered"

	case len(state.waiting) > 0:
		ready.Status = metav1.ConditionFalse
		ready.Reason = sdcorev1alpha1.ReasonWaitingForData
		ready.Message = fmt.Sprintf(
			"Waiting for integration data: %s", strings.Join(state.waiting, ", "))

		synced.Status = metav1.ConditionFalse
		synced.Reason = sdcorev1alpha1.ReasonWaitingForData
		synced.Message = "Configuration not rendered"

	case state.certState == certExpired:
		ready.Status = metav1.ConditionFalse
		ready.Reason = sdcorev1alpha1.ReasonRenewalRequested
		ready.Message = "Withholding activation until a valid certificate bundle is available"

		synced.Status = metav1.ConditionTrue
		synced.Reason = sdcorev1alpha1.ReasonReconciled
		synced.Message = "Last-good configuration retained"

	case readyReplicas < 1:
		ready.Status = metav1.ConditionFalse
		ready.Reason = sdcorev1alpha1.ReasonWorkloadStarting
		ready.Message = "Workload is starting"

		synced.Status = metav1.ConditionTrue
		synced.Reason = sdcorev1alpha1.ReasonReconciled
		synced.Message = "Configuration applied"

	default:
		ready.Status = metav1.ConditionTrue
		ready.Reason = sdcorev1alpha1.ReasonReconciled
		ready.Message = "NRF is configured and serving"

		synced.Status = metav1.ConditionTrue
		synced.Reason = sdcorev1alpha1.ReasonReconciled
		synced.Message = "Configuration applied"
	}

	return ready, cert, synced
}
