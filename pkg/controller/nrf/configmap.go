package nrf

import (
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
	"github.com/sdcore/nrf-operator/pkg/defaults"
	"github.com/sdcore/nrf-operator/pkg/metadata"
	"github.com/sdcore/nrf-operator/pkg/nrfconfig"
)

// ConfigMapName returns the name of the rendered configuration ConfigMap.
func ConfigMapName(nrfName string) string {
	return nrfName + "-nrfcfg"
}

// BuildConfigMap renders the workload configuration into a ConfigMap.
// Rendering is deterministic: identical state yields byte-identical data.
// The log forwarder configuration is included only when logging is wired.
func BuildConfigMap(
	nrf *sdcorev1alpha1.NRF,
	resolved defaults.Resolved,
	state *relationState,
	scheme *runtime.Scheme,
) (*corev1.ConfigMap, error) {
	content, err := nrfconfig.Render(nrfconfig.Inputs{
		DatabaseURI:  state.databaseURI,
		DatabaseName: resolved.DatabaseName,
		WebUIURL:     state.webuiURL,
		Host:         serviceHost(nrf),
		SBIPort:      resolved.SBIPort,
		Scheme:       defaults.SBIScheme,
		LogLevel:     resolved.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render NRF config: %w", err)
	}

	data := map[string]string{
		nrfconfig.ConfigFileName: content,
	}

	if nrf.Spec.Logging != nil {
		forwarder, err := nrfconfig.RenderLogForwarder(
			nrf.Spec.Logging.LokiURL,
			nrf.Name,
			nrf.Namespace,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to render log forwarder config: %w", err)
		}
		data[nrfconfig.ForwarderConfigFileName] = forwarder
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ConfigMapName(nrf.Name),
			Namespace: nrf.Namespace,
			Labels:    metadata.BuildStandardLabels(nrf.Name, metadata.ComponentConfig),
		},
		Data: data,
	}

	if err := ctrl.SetControllerReference(nrf, cm, scheme); err != nil {
		return nil, fmt.Errorf("failed to set controller reference: %w", err)
	}

	return cm, nil
}

// configMapHash hashes a ConfigMap's data in key order, so equal data
// always yields an equal hash.
func configMapHash(cm *corev1.ConfigMap) string {
	keys := make([]string, 0, len(cm.Data))
	for k := range cm.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('\n')
		b.WriteString(cm.Data[k])
		b.WriteByte('\n')
	}
	return nrfconfig.Hash(b.String())
}
