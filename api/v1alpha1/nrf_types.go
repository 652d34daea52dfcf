/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1alpha1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ============================================================================
// NRF Spec
// ============================================================================

// NRFSpec defines the desired state of NRF.
type NRFSpec struct {
	// Image is the NRF container image.
	// +optional
	// +kubebuilder:validation:MinLength=1
	// +kubebuilder:validation:MaxLength=512
	Image string `json:"image,omitempty"`

	// SBIPort is the port the NRF service-based interface listens on.
	// +optional
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	SBIPort *int32 `json:"sbiPort,omitempty"`

	// MetricsPort is the port the NRF exposes Prometheus metrics on.
	// +optional
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	MetricsPort *int32 `json:"metricsPort,omitempty"`

	// LogLevel sets the workload log verbosity.
	// +optional
	LogLevel LogLevel `json:"logLevel,omitempty"`

	// Database points at the MongoDB integration data.
	Database DatabaseSpec `json:"database"`

	// Config points at the shared SD-Core configuration published by the
	// central configuration service.
	Config ConfigSourceSpec `json:"config"`

	// TLS configures the SBI certificate bundle. When nil, the operator
	// issues and rotates the bundle from its own CA.
	// +optional
	TLS *TLSSpec `json:"tls,omitempty"`

	// Logging configures log forwarding to an external Loki sink.
	// +optional
	Logging *LoggingSpec `json:"logging,omitempty"`

	// Resources defines the compute resource requirements for the NRF container.
	// +optional
	Resources corev1.ResourceRequirements `json:"resources,omitempty"`

	// PodAnnotations are annotations to add to the workload pods.
	// +optional
	// +kubebuilder:validation:MaxProperties=64
	PodAnnotations map[string]string `json:"podAnnotations,omitempty"`

	// PodLabels are additional labels to add to the workload pods.
	// +optional
	// +kubebuilder:validation:MaxProperties=64
	PodLabels map[string]string `json:"podLabels,omitempty"`
}

// LogLevel is a workload log verbosity level.
// +kubebuilder:validation:Enum=debug;info;warn;error;fatal;panic
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
	LogLevelPanic LogLevel = "panic"
)

// DatabaseSpec points at the Secret carrying MongoDB connection data.
// The Secret is expected to hold a "uris" key with one or more
// comma-separated connection strings; the first one is used.
type DatabaseSpec struct {
	// SecretRef names the Secret in the NRF's namespace.
	SecretRef corev1.LocalObjectReference `json:"secretRef"`

	// Name is the logical database name.
	// +optional
	// +kubebuilder:validation:MinLength=1
	// +kubebuilder:validation:MaxLength=63
	Name string `json:"name,omitempty"`
}

// ConfigSourceSpec points at the ConfigMap carrying shared core
// configuration. The ConfigMap is expected to hold a "webuiUrl" key.
type ConfigSourceSpec struct {
	// ConfigMapRef names the ConfigMap in the NRF's namespace.
	ConfigMapRef corev1.LocalObjectReference `json:"configMapRef"`
}

// TLSSpec configures the SBI certificate bundle.
type TLSSpec struct {
	// SecretRef names an externally managed kubernetes.io/tls Secret
	// holding tls.crt, tls.key and ca.crt. When nil, the operator issues
	// the bundle itself.
	// +optional
	SecretRef *corev1.LocalObjectReference `json:"secretRef,omitempty"`

	// CommonName is the subject common name requested for the SBI
	// certificate.
	// +optional
	// +kubebuilder:validation:MinLength=1
	// +kubebuilder:validation:MaxLength=253
	CommonName string `json:"commonName,omitempty"`
}

// LoggingSpec configures log forwarding to a Loki push API endpoint.
type LoggingSpec struct {
	// LokiURL is the push endpoint, e.g. http://loki:3100/loki/api/v1/push.
	// +kubebuilder:validation:Pattern=`^https?://`
	// +kubebuilder:validation:MaxLength=512
	LokiURL string `json:"lokiURL"`

	// Image overrides the log forwarder sidecar image.
	// +optional
	// +kubebuilder:validation:MinLength=1
	// +kubebuilder:validation:MaxLength=512
	Image string `json:"image,omitempty"`
}

// ============================================================================
// NRF Status
// ============================================================================

// Phase is a coarse, human-oriented summary of the NRF lifecycle. It is
// recomputed from observed state on every reconciliation, never edited
// incrementally.
type Phase string

const (
	// PhaseBlocked means a required integration is missing from the spec
	// or its referenced object does not exist.
	PhaseBlocked Phase = "Blocked"

	// PhaseWaiting means integrations are wired but not yet negotiated
	// (no connection data, no valid certificate bundle, workload not ready).
	PhaseWaiting Phase = "Waiting"

	// PhaseReady means the workload is configured and serving.
	PhaseReady Phase = "Ready"
)

// Condition types reported on NRF resources.
const (
	// ConditionReady tracks overall convergence of the workload.
	ConditionReady = "Ready"

	// ConditionCertificate tracks the validity of the SBI certificate bundle.
	ConditionCertificate = "CertificateValid"

	// ConditionConfigSynced tracks whether the rendered workload
	// configuration matches the desired state.
	ConditionConfigSynced = "ConfigSynced"
)

// Condition reasons reported on NRF resources.
const (
	ReasonMissingIntegration = "MissingIntegration"
	ReasonWaitingForData     = "WaitingForIntegrationData"
	ReasonCertificateAbsent  = "CertificateAbsent"
	ReasonCertificateExpired = "CertificateExpired"
	ReasonRenewalRequested   = "RenewalRequested"
	ReasonWorkloadStarting   = "WorkloadStarting"
	ReasonReconciled         = "Reconciled"
)

// NRFStatus defines the observed state of NRF.
type NRFStatus struct {
	// Conditions represent the latest available observations.
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// Phase summarizes the lifecycle state.
	// +optional
	Phase Phase `json:"phase,omitempty"`

	// URL is the published SBI endpoint handed to dependent network
	// functions.
	// +optional
	URL string `json:"url,omitempty"`

	// ConfigHash is the content hash of the currently applied workload
	// configuration.
	// +optional
	ConfigHash string `json:"configHash,omitempty"`

	// Version is the version of the running NRF workload, derived from the
	// container image tag.
	// +optional
	Version string `json:"version,omitempty"`

	// ObservedGeneration is the spec generation last acted upon.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
}

// ============================================================================
// Kind Definition and registration
// ============================================================================

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Phase",type="string",JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="URL",type="string",JSONPath=".status.url"
// +kubebuilder:printcolumn:name="Version",type="string",JSONPath=".status.version"

// NRF is the Schema for the nrfs API.
type NRF struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   NRFSpec   `json:"spec,omitempty"`
	Status NRFStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// NRFList contains a list of NRF.
type NRFList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []NRF `json:"items"`
}

func init() {
	SchemeBuilder.Register(&NRF{}, &NRFList{})
}
