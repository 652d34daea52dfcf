package handlers

import (
	"context"
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/utils/ptr"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
)

func TestNRFValidator(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mutate  func(nrf *sdcorev1alpha1.NRF)
		wantErr string
	}{
		"minimal spec is valid": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {},
		},
		"missing database secretRef": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.Database.SecretRef.Name = ""
			},
			wantErr: "spec.database.secretRef.name is required",
		},
		"missing config configMapRef": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.Config.ConfigMapRef.Name = ""
			},
			wantErr: "spec.config.configMapRef.name is required",
		},
		"empty tls secretRef name": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.TLS = &sdcorev1alpha1.TLSSpec{
					SecretRef: &corev1.LocalObjectReference{},
				}
			},
			wantErr: "spec.tls.secretRef.name",
		},
		"tls without secretRef is valid": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.TLS = &sdcorev1alpha1.TLSSpec{CommonName: "nrf.example"}
			},
		},
		"sbi port out of range": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.SBIPort = ptr.To(int32(0))
			},
			wantErr: "between 1 and 65535",
		},
		"port collision": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.SBIPort = ptr.To(int32(9000))
				nrf.Spec.MetricsPort = ptr.To(int32(9000))
			},
			wantErr: "must differ",
		},
		"invalid log level": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.LogLevel = "verbose"
			},
			wantErr: "spec.logLevel",
		},
		"valid log level": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.LogLevel = sdcorev1alpha1.LogLevelWarn
			},
		},
		"loki url with bad scheme": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.Logging = &sdcorev1alpha1.LoggingSpec{
					LokiURL: "ftp://loki:3100/loki/api/v1/push",
				}
			},
			wantErr: "must use http or https",
		},
		"loki url without host": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.Logging = &sdcorev1alpha1.LoggingSpec{LokiURL: "http://"}
			},
			wantErr: "missing a host",
		},
		"valid loki url": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.Logging = &sdcorev1alpha1.LoggingSpec{
					LokiURL: "http://loki:3100/loki/api/v1/push",
				}
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			nrf := minimalNRF()
			tc.mutate(nrf)

			_, err := NewNRFValidator().ValidateCreate(context.Background(), nrf)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateCreate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateCreate() = nil, want error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestNRFValidatorUpdateAndDelete(t *testing.T) {
	t.Parallel()

	v := NewNRFValidator()

	bad := minimalNRF()
	bad.Spec.Database.SecretRef.Name = ""
	if _, err := v.ValidateUpdate(context.Background(), minimalNRF(), bad); err == nil {
		t.Error("ValidateUpdate() accepted a spec missing the database reference")
	}

	if _, err := v.ValidateDelete(context.Background(), minimalNRF()); err != nil {
		t.Errorf("ValidateDelete() error = %v, want nil", err)
	}
}

func TestNRFValidatorWrongType(t *testing.T) {
	t.Parallel()

	_, err := NewNRFValidator().ValidateCreate(context.Background(), &corev1.Pod{})
	if err == nil {
		t.Fatal("expected error for non-NRF object")
	}
}
