package nrf

import (
	"fmt"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	ctrl "sigs.k8s.io/controller-runtime"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
	"github.com/sdcore/nrf-operator/pkg/defaults"
	"github.com/sdcore/nrf-operator/pkg/metadata"
)

// BuildService creates the Service exposing the NRF service-based
// interface and its metrics endpoint. The prometheus.io annotations make
// the metrics port discoverable by annotation-based scrape configs.
func BuildService(
	nrf *sdcorev1alpha1.NRF,
	resolved defaults.Resolved,
	scheme *runtime.Scheme,
) (*corev1.Service, error) {
	labels := metadata.BuildStandardLabels(nrf.Name, metadata.ComponentWorkload)

	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      nrf.Name,
			Namespace: nrf.Namespace,
			Labels:    labels,
			Annotations: map[string]string{
				"prometheus.io/scrape": "true",
				"prometheus.io/port":   strconv.Itoa(int(resolved.MetricsPort)),
			},
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: metadata.GetSelectorLabels(labels),
			Ports: []corev1.ServicePort{
				{
					Name:       "sbi",
					Port:       resolved.SBIPort,
					TargetPort: intstr.FromString("sbi"),
					Protocol:   corev1.ProtocolTCP,
				},
				{
					Name:       "metrics",
					Port:       resolved.MetricsPort,
					TargetPort: intstr.FromString("metrics"),
					Protocol:   corev1.ProtocolTCP,
				},
			},
		},
	}

	if err := ctrl.SetControllerReference(nrf, svc, scheme); err != nil {
		return nil, fmt.Errorf("failed to set controller reference: %w", err)
	}

	return svc, nil
}
