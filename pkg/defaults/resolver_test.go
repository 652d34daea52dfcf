package defaults

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/ptr"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		spec *sdcorev1alpha1.NRFSpec
		want Resolved
	}{
		"empty spec gets all defaults": {
			spec: &sdcorev1alpha1.NRFSpec{},
			want: Resolved{
				Image:          DefaultImage,
				ForwarderImage: DefaultForwarderImage,
				SBIPort:        DefaultSBIPort,
				MetricsPort:    DefaultMetricsPort,
				LogLevel:       "info",
				DatabaseName:   DefaultDatabaseName,
				CommonName:     DefaultCommonName,
			},
		},
		"explicit values win": {
			spec: &sdcorev1alpha1.NRFSpec{
				Image:       "registry.local/nrf:2.0.0",
				SBIPort:     ptr.To(int32(30510)),
				MetricsPort: ptr.To(int32(9091)),
				LogLevel:    sdcorev1alpha1.LogLevelDebug,
				Database: sdcorev1alpha1.DatabaseSpec{
					SecretRef: corev1.LocalObjectReference{Name: "mongodb"},
					Name:      "sdcore",
				},
				TLS: &sdcorev1alpha1.TLSSpec{CommonName: "nrf.example.com"},
				Logging: &sdcorev1alpha1.LoggingSpec{
					LokiURL: "http://loki:3100",
					Image:   "registry.local/promtail:9",
				},
			},
			want: Resolved{
				Image:          "registry.local/nrf:2.0.0",
				ForwarderImage: "registry.local/promtail:9",
				SBIPort:        30510,
				MetricsPort:    9091,
				LogLevel:       "debug",
				DatabaseName:   "sdcore",
				CommonName:     "nrf.example.com",
			},
		},
		"tls without common name keeps default": {
			spec: &sdcorev1alpha1.NRFSpec{
				TLS: &sdcorev1alpha1.TLSSpec{
					SecretRef: &corev1.LocalObjectReference{Name: "external-tls"},
				},
			},
			want: Resolved{
				Image:          DefaultImage,
				ForwarderImage: DefaultForwarderImage,
				SBIPort:        DefaultSBIPort,
				MetricsPort:    DefaultMetricsPort,
				LogLevel:       "info",
				DatabaseName:   DefaultDatabaseName,
				CommonName:     DefaultCommonName,
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := Resolve(tc.spec)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPopulateSpecDefaults(t *testing.T) {
	t.Parallel()

	nrf := &sdcorev1alpha1.NRF{
		Spec: sdcorev1alpha1.NRFSpec{
			Logging: &sdcorev1alpha1.LoggingSpec{LokiURL: "http://loki:3100"},
		},
	}

	PopulateSpecDefaults(nrf)

	if nrf.Spec.Image != DefaultImage {
		t.Errorf("Image = %s, want %s", nrf.Spec.Image, DefaultImage)
	}
	if nrf.Spec.SBIPort == nil || *nrf.Spec.SBIPort != DefaultSBIPort {
		t.Errorf("SBIPort = %v, want %d", nrf.Spec.SBIPort, DefaultSBIPort)
	}
	if nrf.Spec.MetricsPort == nil || *nrf.Spec.MetricsPort != DefaultMetricsPort {
		t.Errorf("MetricsPort = %v, want %d", nrf.Spec.MetricsPort, DefaultMetricsPort)
	}
	if nrf.Spec.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %s, want %s", nrf.Spec.LogLevel, DefaultLogLevel)
	}
	if nrf.Spec.Database.Name != DefaultDatabaseName {
		t.Errorf("Database.Name = %s, want %s", nrf.Spec.Database.Name, DefaultDatabaseName)
	}
	if nrf.Spec.Logging.Image != DefaultForwarderImage {
		t.Errorf("Logging.Image = %s, want %s", nrf.Spec.Logging.Image, DefaultForwarderImage)
	}

	// TLS defaulting only applies when the block is present.
	if nrf.Spec.TLS != nil {
		t.Error("TLS block should not be created by defaulting")
	}

	// Populating twice changes nothing.
	populated := nrf.DeepCopy()
	PopulateSpecDefaults(nrf)
	if !cmp.Equal(populated.Spec, nrf.Spec) {
		t.Error("PopulateSpecDefaults must be idempotent")
	}
}

func TestValidLogLevels(t *testing.T) {
	t.Parallel()

	levels := ValidLogLevels()
	if len(levels) != 6 {
		t.Fatalf("ValidLogLevels() = %v, want 6 entries", levels)
	}
	if levels[0] != sdcorev1alpha1.LogLevelDebug {
		t.Errorf("first level = %s, want debug", levels[0])
	}
}
