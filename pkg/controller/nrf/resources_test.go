package nrf

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	yaml "gopkg.in/yaml.v2"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
	"github.com/sdcore/nrf-operator/pkg/cert"
	"github.com/sdcore/nrf-operator/pkg/defaults"
	"github.com/sdcore/nrf-operator/pkg/nrfconfig"
)

func builderScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	_ = sdcorev1alpha1.AddToScheme(scheme)
	return scheme
}

func builderState() *relationState {
	return &relationState{
		databaseURI:   "mongodb://db:27017",
		webuiURL:      "http://webui:5000",
		certState:     certValid,
		tlsSecretName: "test-nrf-tls",
	}
}

func TestBuildConfigMap(t *testing.T) {
	t.Parallel()
	scheme := builderScheme(t)

	nrf := newTestNRF("test-nrf")
	nrf.UID = "test-uid"

	cm, err := BuildConfigMap(nrf, defaults.Resolve(&nrf.Spec), builderState(), scheme)
	if err != nil {
		t.Fatalf("BuildConfigMap failed: %v", err)
	}

	if cm.Name != "test-nrf-nrfcfg" {
		t.Errorf("Name = %s, want test-nrf-nrfcfg", cm.Name)
	}
	if len(cm.OwnerReferences) != 1 || cm.OwnerReferences[0].Kind != "NRF" {
		t.Errorf("OwnerReferences = %v, want controller ref to NRF", cm.OwnerReferences)
	}

	content := cm.Data[nrfconfig.ConfigFileName]
	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(content), &parsed); err != nil {
		t.Fatalf("Rendered config is not valid YAML: %v", err)
	}
	for _, want := range []string{
		"mongodb://db:27017",
		"http://webui:5000",
		"test-nrf.default.svc.cluster.local",
		"/support/TLS/nrf.pem",
		"/support/TLS/nrf.key",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("Rendered config missing %q:\n%s", want, content)
		}
	}

	if _, ok := cm.Data[nrfconfig.ForwarderConfigFileName]; ok {
		t.Error("Forwarder config should not be rendered without logging")
	}

	// With logging wired, the forwarder config appears too.
	nrf.Spec.Logging = &sdcorev1alpha1.LoggingSpec{LokiURL: "http://loki:3100/loki/api/v1/push"}
	cm, err = BuildConfigMap(nrf, defaults.Resolve(&nrf.Spec), builderState(), scheme)
	if err != nil {
		t.Fatalf("BuildConfigMap failed: %v", err)
	}
	forwarder := cm.Data[nrfconfig.ForwarderConfigFileName]
	if !strings.Contains(forwarder, "http://loki:3100/loki/api/v1/push") {
		t.Errorf("Forwarder config missing Loki URL:\n%s", forwarder)
	}
}

func TestBuildStatefulSet(t *testing.T) {
	t.Parallel()
	scheme := builderScheme(t)

	tests := map[string]struct {
		mutate     func(*sdcorev1alpha1.NRF)
		assertFunc func(t *testing.T, nrf *sdcorev1alpha1.NRF)
	}{
		"defaults": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {},
			assertFunc: func(t *testing.T, nrf *sdcorev1alpha1.NRF) {
				sts, err := BuildStatefulSet(nrf, defaults.Resolve(&nrf.Spec), builderState(), "abc123", scheme)
				if err != nil {
					t.Fatalf("BuildStatefulSet failed: %v", err)
				}

				if diff := cmp.Diff(ptr.To(int32(1)), sts.Spec.Replicas); diff != "" {
					t.Errorf("Replicas mismatch (-want +got):\n%s", diff)
				}
				if got := sts.Spec.Template.Annotations[ConfigHashAnnotation]; got != "abc123" {
					t.Errorf("Config hash annotation = %s, want abc123", got)
				}

				if len(sts.Spec.Template.Spec.Containers) != 1 {
					t.Fatalf("Containers = %d, want 1", len(sts.Spec.Template.Spec.Containers))
				}
				c := sts.Spec.Template.Spec.Containers[0]
				if c.Image != defaults.DefaultImage {
					t.Errorf("Image = %s, want %s", c.Image, defaults.DefaultImage)
				}

				// The upstream image hardcodes its config flag, like the
				// cert paths.
				wantCommand := []string{"/bin/nrf", "--nrfcfg", "/etc/nrf/nrfcfg.yaml"}
				if diff := cmp.Diff(wantCommand, c.Command); diff != "" {
					t.Errorf("Command mismatch (-want +got):\n%s", diff)
				}
				if c.Ports[0].ContainerPort != defaults.DefaultSBIPort {
					t.Errorf("SBI port = %d, want %d", c.Ports[0].ContainerPort, defaults.DefaultSBIPort)
				}

				wantMounts := []corev1.VolumeMount{
					{Name: "config", MountPath: "/etc/nrf", ReadOnly: true},
					{Name: "tls", MountPath: "/support/TLS", ReadOnly: true},
				}
				if diff := cmp.Diff(wantMounts, c.VolumeMounts); diff != "" {
					t.Errorf("VolumeMounts mismatch (-want +got):\n%s", diff)
				}

				// TLS secret keys projected onto the image's filenames.
				var tlsVolume *corev1.Volume
				for i := range sts.Spec.Template.Spec.Volumes {
					if sts.Spec.Template.Spec.Volumes[i].Name == "tls" {
						tlsVolume = &sts.Spec.Template.Spec.Volumes[i]
					}
				}
				if tlsVolume == nil {
					t.Fatal("TLS volume missing")
				}
				wantItems := []corev1.KeyToPath{
					{Key: cert.CertKey, Path: nrfconfig.CertificateName},
					{Key: cert.KeyKey, Path: nrfconfig.PrivateKeyName},
				}
				if diff := cmp.Diff(wantItems, tlsVolume.Secret.Items); diff != "" {
					t.Errorf("TLS volume items mismatch (-want +got):\n%s", diff)
				}
			},
		},
		"custom image, ports and pod metadata": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.Image = "registry.local/nrf:2.0.0"
				nrf.Spec.SBIPort = ptr.To(int32(30510))
				nrf.Spec.PodAnnotations = map[string]string{
					"example.com/team": "core",
					// Attempts to override the hash stamp are ignored.
					ConfigHashAnnotation: "spoofed",
				}
				nrf.Spec.PodLabels = map[string]string{"example.com/tier": "control"}
			},
			assertFunc: func(t *testing.T, nrf *sdcorev1alpha1.NRF) {
				sts, err := BuildStatefulSet(nrf, defaults.Resolve(&nrf.Spec), builderState(), "h1", scheme)
				if err != nil {
					t.Fatalf("BuildStatefulSet failed: %v", err)
				}
				c := sts.Spec.Template.Spec.Containers[0]
				if c.Image != "registry.local/nrf:2.0.0" {
					t.Errorf("Image = %s", c.Image)
				}
				if c.Ports[0].ContainerPort != 30510 {
					t.Errorf("SBI port = %d, want 30510", c.Ports[0].ContainerPort)
				}
				if got := sts.Spec.Template.Annotations[ConfigHashAnnotation]; got != "h1" {
					t.Errorf("Config hash annotation = %s, want h1 (user override must lose)", got)
				}
				if sts.Spec.Template.Annotations["example.com/team"] != "core" {
					t.Error("Custom pod annotation missing")
				}
				if sts.Spec.Template.Labels["example.com/tier"] != "control" {
					t.Error("Custom pod label missing")
				}
			},
		},
		"logging adds forwarder sidecar and log volume": {
			mutate: func(nrf *sdcorev1alpha1.NRF) {
				nrf.Spec.Logging = &sdcorev1alpha1.LoggingSpec{LokiURL: "http://loki:3100/loki/api/v1/push"}
			},
			assertFunc: func(t *testing.T, nrf *sdcorev1alpha1.NRF) {
				sts, err := BuildStatefulSet(nrf, defaults.Resolve(&nrf.Spec), builderState(), "h1", scheme)
				if err != nil {
					t.Fatalf("BuildStatefulSet failed: %v", err)
				}
				if len(sts.Spec.Template.Spec.Containers) != 2 {
					t.Fatalf("Containers = %d, want 2", len(sts.Spec.Template.Spec.Containers))
				}
				forwarder := sts.Spec.Template.Spec.Containers[1]
				if forwarder.Name != forwarderContainerName {
					t.Errorf("Sidecar name = %s, want %s", forwarder.Name, forwarderContainerName)
				}
				if forwarder.Image != defaults.DefaultForwarderImage {
					t.Errorf("Sidecar image = %s, want %s", forwarder.Image, defaults.DefaultForwarderImage)
				}

				var hasLogsVolume bool
				for _, v := range sts.Spec.Template.Spec.Volumes {
					if v.Name == logsVolumeName && v.EmptyDir != nil {
						hasLogsVolume = true
					}
				}
				if !hasLogsVolume {
					t.Error("Logs volume missing")
				}
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			nrf := newTestNRF("test-nrf")
			nrf.UID = "test-uid"
			tc.mutate(nrf)
			tc.assertFunc(t, nrf)
		})
	}
}

func TestBuildService(t *testing.T) {
	t.Parallel()
	scheme := builderScheme(t)

	nrf := newTestNRF("test-nrf")
	nrf.UID = "test-uid"

	svc, err := BuildService(nrf, defaults.Resolve(&nrf.Spec), scheme)
	if err != nil {
		t.Fatalf("BuildService failed: %v", err)
	}

	if svc.Spec.Type != corev1.ServiceTypeClusterIP {
		t.Errorf("Type = %s, want ClusterIP", svc.Spec.Type)
	}
	if len(svc.Spec.Ports) != 2 {
		t.Fatalf("Ports = %d, want 2", len(svc.Spec.Ports))
	}
	if svc.Spec.Ports[0].Port != defaults.DefaultSBIPort {
		t.Errorf("SBI port = %d, want %d", svc.Spec.Ports[0].Port, defaults.DefaultSBIPort)
	}
	if svc.Spec.Ports[1].Port != defaults.DefaultMetricsPort {
		t.Errorf("Metrics port = %d, want %d", svc.Spec.Ports[1].Port, defaults.DefaultMetricsPort)
	}

	wantAnnotations := map[string]string{
		"prometheus.io/scrape": "true",
		"prometheus.io/port":   "8080",
	}
	if diff := cmp.Diff(wantAnnotations, svc.Annotations); diff != "" {
		t.Errorf("Annotations mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPeeringConfigMap(t *testing.T) {
	t.Parallel()
	scheme := builderScheme(t)

	nrf := newTestNRF("test-nrf")
	nrf.UID = "test-uid"

	cm, err := BuildPeeringConfigMap(nrf, defaults.Resolve(&nrf.Spec), scheme)
	if err != nil {
		t.Fatalf("BuildPeeringConfigMap failed: %v", err)
	}

	want := "https://test-nrf.default.svc.cluster.local:29510"
	if cm.Data[PeeringURLKey] != want {
		t.Errorf("Published URL = %s, want %s", cm.Data[PeeringURLKey], want)
	}

	nrf.Spec.SBIPort = ptr.To(int32(30510))
	cm, err = BuildPeeringConfigMap(nrf, defaults.Resolve(&nrf.Spec), scheme)
	if err != nil {
		t.Fatalf("BuildPeeringConfigMap failed: %v", err)
	}
	if got := cm.Data[PeeringURLKey]; got != "https://test-nrf.default.svc.cluster.local:30510" {
		t.Errorf("Published URL = %s, want custom port", got)
	}
}

func TestComputeStatus(t *testing.T) {
	t.Parallel()

	nrf := newTestNRF("test-nrf")
	nrf.Generation = 3
	resolved := defaults.Resolve(&nrf.Spec)

	tests := map[string]struct {
		state         *relationState
		readyReplicas int32
		wantPhase     sdcorev1alpha1.Phase
		wantReady     metav1.ConditionStatus
		wantReason    string
		wantVersion   string
	}{
		"missing integration blocks": {
			state:      &relationState{missing: []string{integrationDatabase}},
			wantPhase:  sdcorev1alpha1.PhaseBlocked,
			wantReady:  metav1.ConditionFalse,
			wantReason: sdcorev1alpha1.ReasonMissingIntegration,
		},
		"un-negotiated integration waits": {
			state:      &relationState{waiting: []string{integrationConfig}},
			wantPhase:  sdcorev1alpha1.PhaseWaiting,
			wantReady:  metav1.ConditionFalse,
			wantReason: sdcorev1alpha1.ReasonWaitingForData,
		},
		"expired certificate requests renewal": {
			state:      &relationState{certState: certExpired},
			wantPhase:  sdcorev1alpha1.PhaseWaiting,
			wantReady:  metav1.ConditionFalse,
			wantReason: sdcorev1alpha1.ReasonRenewalRequested,
		},
		"workload starting": {
			state:         &relationState{certState: certValid},
			readyReplicas: 0,
			wantPhase:     sdcorev1alpha1.PhaseWaiting,
			wantReady:     metav1.ConditionFalse,
			wantReason:    sdcorev1alpha1.ReasonWorkloadStarting,
		},
		"converged and serving": {
			state:         &relationState{certState: certValid},
			readyReplicas: 1,
			wantPhase:     sdcorev1alpha1.PhaseReady,
			wantReady:     metav1.ConditionTrue,
			wantReason:    sdcorev1alpha1.ReasonReconciled,
			wantVersion:   "1.6.2",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			status := computeStatus(nrf, tc.state, resolved, "h1", tc.readyReplicas)

			if status.Phase != tc.wantPhase {
				t.Errorf("Phase = %s, want %s", status.Phase, tc.wantPhase)
			}
			ready := meta.FindStatusCondition(status.Conditions, sdcorev1alpha1.ConditionReady)
			if ready == nil {
				t.Fatal("Ready condition missing")
			}
			if ready.Status != tc.wantReady {
				t.Errorf("Ready status = %s, want %s", ready.Status, tc.wantReady)
			}
			if ready.Reason != tc.wantReason {
				t.Errorf("Ready reason = %s, want %s", ready.Reason, tc.wantReason)
			}
			if ready.ObservedGeneration != 3 {
				t.Errorf("ObservedGeneration = %d, want 3", ready.ObservedGeneration)
			}
			if status.Version != tc.wantVersion {
				t.Errorf("Version = %q, want %q", status.Version, tc.wantVersion)
			}
		})
	}
}

func TestImageVersion(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		image string
		want  string
	}{
		"tagged":                 {image: "ghcr.io/sdcore/nrf:1.6.2", want: "1.6.2"},
		"registry port and tag":  {image: "registry:5000/sdcore/nrf:1.6.2", want: "1.6.2"},
		"registry port untagged": {image: "registry:5000/sdcore/nrf", want: ""},
		"untagged":               {image: "nrf", want: ""},
		"digest pinned":          {image: "ghcr.io/sdcore/nrf@sha256:deadbeef", want: ""},
		"tag and digest":         {image: "ghcr.io/sdcore/nrf:1.6.2@sha256:deadbeef", want: "1.6.2"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := imageVersion(tc.image); got != tc.want {
				t.Errorf("imageVersion(%q) = %q, want %q", tc.image, got, tc.want)
			}
		})
	}
}
