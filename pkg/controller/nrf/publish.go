package nrf

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
	"github.com/sdcore/nrf-operator/pkg/defaults"
	"github.com/sdcore/nrf-operator/pkg/metadata"
)

// PeeringURLKey is the key dependent network functions read the NRF
// endpoint from in the peering ConfigMap.
const PeeringURLKey = "url"

// PeeringConfigMapName returns the name of the ConfigMap publishing NRF
// connection details to dependent network functions.
func PeeringConfigMapName(nrfName string) string {
	return nrfName + "-nrf-peering"
}

// serviceHost is the cluster-internal DNS name the NRF registers and
// publishes.
func serviceHost(nrf *sdcorev1alpha1.NRF) string {
	return fmt.Sprintf("%s.%s.svc.cluster.local", nrf.Name, nrf.Namespace)
}

// PublishedURL is the SBI endpoint handed to dependent network functions.
func PublishedURL(nrf *sdcorev1alpha1.NRF, resolved defaults.Resolved) string {
	return fmt.Sprintf("%s://%s:%d", defaults.SBIScheme, serviceHost(nrf), resolved.SBIPort)
}

// BuildPeeringConfigMap creates the ConfigMap carrying NRF connection
// details. It is only applied once the workload is configured, so
// consumers never see an endpoint that cannot serve.
func BuildPeeringConfigMap(
	nrf *sdcorev1alpha1.NRF,
	resolved defaults.Resolved,
	scheme *runtime.Scheme,
) (*corev1.ConfigMap, error) {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      PeeringConfigMapName(nrf.Name),
			Namespace: nrf.Namespace,
			Labels:    metadata.BuildStandardLabels(nrf.Name, metadata.ComponentPeering),
		},
		Data: map[string]string{
			PeeringURLKey: PublishedURL(nrf, resolved),
		},
	}

	if err := ctrl.SetControllerReference(nrf, cm, scheme); err != nil {
		return nil, fmt.Errorf("failed to set controller reference: %w", err)
	}

	return cm, nil
}
