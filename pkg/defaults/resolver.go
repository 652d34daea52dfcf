// Package defaults is the single source of truth for NRF defaulting logic.
// The mutating webhook, the validator and the reconciler all derive their
// view of a spec from here so they can never disagree.
package defaults

import (
	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
)

const (
	// DefaultImage is the default NRF container image.
	DefaultImage = "ghcr.io/sdcore/nrf:1.6.2"

	// DefaultForwarderImage is the default log forwarder sidecar image.
	DefaultForwarderImage = "docker.io/grafana/promtail:3.0.0"

	// DefaultSBIPort is the 3GPP-assigned default NRF SBI port.
	DefaultSBIPort int32 = 29510

	// DefaultMetricsPort is the port the NRF exposes Prometheus metrics on.
	DefaultMetricsPort int32 = 8080

	// DefaultDatabaseName is the logical MongoDB database name shared by
	// the SD-Core network functions.
	DefaultDatabaseName = "free5gc"

	// DefaultCommonName is the subject common name requested for the SBI
	// certificate.
	DefaultCommonName = "nrf.sdcore"

	// DefaultLogLevel is the default workload log verbosity.
	DefaultLogLevel = sdcorev1alpha1.LogLevelInfo

	// SBIScheme is the service-based interface scheme. The SBI is always
	// TLS-terminated; http exists only in lab setups the operator does not
	// support.
	SBIScheme = "https"
)

// Resolved is a fully defaulted, flattened view of an NRFSpec.
type Resolved struct {
	Image          string
	ForwarderImage string
	SBIPort        int32
	MetricsPort    int32
	LogLevel       string
	DatabaseName   string
	CommonName     string
}

// Resolve computes the effective configuration for a spec without mutating it.
func Resolve(spec *sdcorev1alpha1.NRFSpec) Resolved {
	r := Resolved{
		Image:          DefaultImage,
		ForwarderImage: DefaultForwarderImage,
		SBIPort:        DefaultSBIPort,
		MetricsPort:    DefaultMetricsPort,
		LogLevel:       string(DefaultLogLevel),
		DatabaseName:   DefaultDatabaseName,
		CommonName:     DefaultCommonName,
	}

	if spec.Image != "" {
		r.Image = spec.Image
	}
	if spec.SBIPort != nil {
		r.SBIPort = *spec.SBIPort
	}
	if spec.MetricsPort != nil {
		r.MetricsPort = *spec.MetricsPort
	}
	if spec.LogLevel != "" {
		r.LogLevel = string(spec.LogLevel)
	}
	if spec.Database.Name != "" {
		r.DatabaseName = spec.Database.Name
	}
	if spec.TLS != nil && spec.TLS.CommonName != "" {
		r.CommonName = spec.TLS.CommonName
	}
	if spec.Logging != nil && spec.Logging.Image != "" {
		r.ForwarderImage = spec.Logging.Image
	}

	return r
}

// PopulateSpecDefaults makes the invisible defaults visible on the object.
// This is what the mutating webhook applies, so a stored spec always shows
// the values the reconciler will act on.
func PopulateSpecDefaults(nrf *sdcorev1alpha1.NRF) {
	if nrf.Spec.Image == "" {
		nrf.Spec.Image = DefaultImage
	}
	if nrf.Spec.SBIPort == nil {
		port := DefaultSBIPort
		nrf.Spec.SBIPort = &port
	}
	if nrf.Spec.MetricsPort == nil {
		port := DefaultMetricsPort
		nrf.Spec.MetricsPort = &port
	}
	if nrf.Spec.LogLevel == "" {
		nrf.Spec.LogLevel = DefaultLogLevel
	}
	if nrf.Spec.Database.Name == "" {
		nrf.Spec.Database.Name = DefaultDatabaseName
	}
	if nrf.Spec.TLS != nil && nrf.Spec.TLS.CommonName == "" {
		nrf.Spec.TLS.CommonName = DefaultCommonName
	}
	if nrf.Spec.Logging != nil && nrf.Spec.Logging.Image == "" {
		nrf.Spec.Logging.Image = DefaultForwarderImage
	}
}

// ValidLogLevels lists the log levels the NRF workload accepts.
func ValidLogLevels() []sdcorev1alpha1.LogLevel {
	return []sdcorev1alpha1.LogLevel{
		sdcorev1alpha1.LogLevelDebug,
		sdcorev1alpha1.LogLevelInfo,
		sdcorev1alpha1.LogLevelWarn,
		sdcorev1alpha1.LogLevelError,
		sdcorev1alpha1.LogLevelFatal,
		sdcorev1alpha1.LogLevelPanic,
	}
}
