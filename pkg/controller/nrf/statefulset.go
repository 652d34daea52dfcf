package nrf

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
	"github.com/sdcore/nrf-operator/pkg/cert"
	"github.com/sdcore/nrf-operator/pkg/defaults"
	"github.com/sdcore/nrf-operator/pkg/metadata"
	"github.com/sdcore/nrf-operator/pkg/nrfconfig"
)

const (
	// ConfigHashAnnotation stamps the rendered configuration hash onto the
	// pod template so the workload restarts exactly when config or
	// certificate material changes.
	ConfigHashAnnotation = "sdcore.io/config-hash"

	configVolumeName = "config"
	tlsVolumeName    = "tls"
	logsVolumeName   = "logs"

	logsMountPath = "/var/log/nrf"

	nrfContainerName       = "nrf"
	forwarderContainerName = "log-forwarder"
)

// BuildStatefulSet creates the NRF workload StatefulSet. The NRF holds
// registration state for the whole core and does not scale horizontally,
// so replicas are pinned to one.
func BuildStatefulSet(
	nrf *sdcorev1alpha1.NRF,
	resolved defaults.Resolved,
	state *relationState,
	configHash string,
	scheme *runtime.Scheme,
) (*appsv1.StatefulSet, error) {
	labels := metadata.BuildStandardLabels(nrf.Name, metadata.ComponentWorkload)
	labels[metadata.LabelNetworkFunction] = "nrf"

	podLabels := metadata.MergeLabels(labels, nrf.Spec.PodLabels)

	podAnnotations := map[string]string{
		ConfigHashAnnotation: configHash,
	}
	for k, v := range nrf.Spec.PodAnnotations {
		if k == ConfigHashAnnotation {
			continue
		}
		podAnnotations[k] = v
	}

	containers := []corev1.Container{buildNRFContainer(nrf, resolved)}
	if nrf.Spec.Logging != nil {
		containers = append(containers, buildForwarderContainer(resolved))
	}

	sts := &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:      nrf.Name,
			Namespace: nrf.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.StatefulSetSpec{
			ServiceName: nrf.Name,
			Replicas:    ptr.To(int32(1)),
			Selector: &metav1.LabelSelector{
				MatchLabels: metadata.GetSelectorLabels(labels),
			},
			UpdateStrategy: appsv1.StatefulSetUpdateStrategy{
				Type: appsv1.RollingUpdateStatefulSetStrategyType,
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels:      podLabels,
					Annotations: podAnnotations,
				},
				Spec: corev1.PodSpec{
					Containers: containers,
					Volumes:    buildVolumes(nrf, state),
				},
			},
		},
	}

	if err := ctrl.SetControllerReference(nrf, sts, scheme); err != nil {
		return nil, fmt.Errorf("failed to set controller reference: %w", err)
	}

	return sts, nil
}

func buildNRFContainer(
	nrf *sdcorev1alpha1.NRF,
	resolved defaults.Resolved,
) corev1.Container {
	volumeMounts := []corev1.VolumeMount{
		{
			Name:      configVolumeName,
			MountPath: nrfconfig.BaseConfigPath,
			ReadOnly:  true,
		},
		{
			Name:      tlsVolumeName,
			MountPath: nrfconfig.CertsDirPath,
			ReadOnly:  true,
		},
	}
	if nrf.Spec.Logging != nil {
		volumeMounts = append(volumeMounts, corev1.VolumeMount{
			Name:      logsVolumeName,
			MountPath: logsMountPath,
		})
	}

	return corev1.Container{
		Name:  nrfContainerName,
		Image: resolved.Image,
		Command: []string{
			"/bin/nrf",
			"--nrfcfg", nrfconfig.BaseConfigPath + "/" + nrfconfig.ConfigFileName,
		},
		Ports: []corev1.ContainerPort{
			{
				Name:          "sbi",
				ContainerPort: resolved.SBIPort,
				Protocol:      corev1.ProtocolTCP,
			},
			{
				Name:          "metrics",
				ContainerPort: resolved.MetricsPort,
				Protocol:      corev1.ProtocolTCP,
			},
		},
		Resources:    nrf.Spec.Resources,
		VolumeMounts: volumeMounts,
		ReadinessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				TCPSocket: &corev1.TCPSocketAction{
					Port: intstr.FromInt32(resolved.SBIPort),
				},
			},
			InitialDelaySeconds: 5,
			PeriodSeconds:       10,
		},
	}
}

func buildForwarderContainer(resolved defaults.Resolved) corev1.Container {
	return corev1.Container{
		Name:  forwarderContainerName,
		Image: resolved.ForwarderImage,
		Args: []string{
			"-config.file=" + nrfconfig.ForwarderConfigPath + "/" + nrfconfig.ForwarderConfigFileName,
		},
		VolumeMounts: []corev1.VolumeMount{
			{
				Name:      configVolumeName,
				MountPath: nrfconfig.ForwarderConfigPath,
				ReadOnly:  true,
			},
			{
				Name:      logsVolumeName,
				MountPath: logsMountPath,
				ReadOnly:  true,
			},
		},
	}
}

// buildVolumes wires the two persisted surfaces of the workload: rendered
// configuration and TLS material. The TLS Secret keys are projected onto
// the filenames the NRF image hardcodes.
func buildVolumes(nrf *sdcorev1alpha1.NRF, state *relationState) []corev1.Volume {
	volumes := []corev1.Volume{
		{
			Name: configVolumeName,
			VolumeSource: corev1.VolumeSource{
				ConfigMap: &corev1.ConfigMapVolumeSource{
					LocalObjectReference: corev1.LocalObjectReference{
						Name: ConfigMapName(nrf.Name),
					},
				},
			},
		},
		{
			Name: tlsVolumeName,
			VolumeSource: corev1.VolumeSource{
				Secret: &corev1.SecretVolumeSource{
					SecretName: state.tlsSecretName,
					Items: []corev1.KeyToPath{
						{Key: cert.CertKey, Path: nrfconfig.CertificateName},
						{Key: cert.KeyKey, Path: nrfconfig.PrivateKeyName},
					},
				},
			},
		},
	}

	if nrf.Spec.Logging != nil {
		volumes = append(volumes, corev1.Volume{
			Name: logsVolumeName,
			VolumeSource: corev1.VolumeSource{
				EmptyDir: &corev1.EmptyDirVolumeSource{},
			},
		})
	}

	return volumes
}
