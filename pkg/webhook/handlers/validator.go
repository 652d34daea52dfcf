package handlers

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
	"github.com/sdcore/nrf-operator/pkg/defaults"
	"github.com/sdcore/nrf-operator/pkg/monitoring"
)

// +kubebuilder:webhook:path=/validate-sdcore-io-v1alpha1-nrf,mutating=false,failurePolicy=fail,sideEffects=None,groups=sdcore.io,resources=nrfs,verbs=create;update,versions=v1alpha1,name=vnrf.kb.io,admissionReviewVersions=v1

// NRFValidator validates Create and Update events for NRF resources. It
// enforces the semantic rules the OpenAPI schema cannot express.
type NRFValidator struct{}

var _ webhook.CustomValidator = &NRFValidator{}

// NewNRFValidator creates a new validator for NRF resources.
func NewNRFValidator() *NRFValidator {
	return &NRFValidator{}
}

func (v *NRFValidator) ValidateCreate(
	ctx context.Context,
	obj runtime.Object,
) (admission.Warnings, error) {
	return v.validate(ctx, obj)
}

func (v *NRFValidator) ValidateUpdate(
	ctx context.Context,
	oldObj, newObj runtime.Object,
) (admission.Warnings, error) {
	return v.validate(ctx, newObj)
}

func (v *NRFValidator) ValidateDelete(
	ctx context.Context,
	obj runtime.Object,
) (admission.Warnings, error) {
	return nil, nil
}

func (v *NRFValidator) validate(
	_ context.Context,
	obj runtime.Object,
) (warnings admission.Warnings, err error) {
	start := time.Now()
	defer func() {
		monitoring.RecordWebhookRequest("validate", "nrf", err, time.Since(start))
	}()

	nrf, ok := obj.(*sdcorev1alpha1.NRF)
	if !ok {
		return nil, fmt.Errorf("expected NRF, got %T", obj)
	}

	if err := validateIntegrationRefs(&nrf.Spec); err != nil {
		return nil, err
	}
	if err := validatePorts(&nrf.Spec); err != nil {
		return nil, err
	}
	if err := validateLogLevel(nrf.Spec.LogLevel); err != nil {
		return nil, err
	}
	if err := validateLogging(nrf.Spec.Logging); err != nil {
		return nil, err
	}

	return nil, nil
}

func validateIntegrationRefs(spec *sdcorev1alpha1.NRFSpec) error {
	if spec.Database.SecretRef.Name == "" {
		return fmt.Errorf("spec.database.secretRef.name is required")
	}
	if spec.Config.ConfigMapRef.Name == "" {
		return fmt.Errorf("spec.config.configMapRef.name is required")
	}
	if spec.TLS != nil && spec.TLS.SecretRef != nil && spec.TLS.SecretRef.Name == "" {
		return fmt.Errorf("spec.tls.secretRef.name must not be empty when set")
	}
	return nil
}

func validatePorts(spec *sdcorev1alpha1.NRFSpec) error {
	sbi := defaults.DefaultSBIPort
	if spec.SBIPort != nil {
		sbi = *spec.SBIPort
	}
	metrics := defaults.DefaultMetricsPort
	if spec.MetricsPort != nil {
		metrics = *spec.MetricsPort
	}

	for name, port := range map[string]int32{"sbiPort": sbi, "metricsPort": metrics} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("spec.%s must be between 1 and 65535, got %d", name, port)
		}
	}
	if sbi == metrics {
		return fmt.Errorf("spec.sbiPort and spec.metricsPort must differ, both are %d", sbi)
	}
	return nil
}

func validateLogLevel(level sdcorev1alpha1.LogLevel) error {
	if level == "" {
		return nil
	}
	if !slices.Contains(defaults.ValidLogLevels(), level) {
		return fmt.Errorf(
			"spec.logLevel %q is not one of %v",
			level, defaults.ValidLogLevels(),
		)
	}
	return nil
}

func validateLogging(logging *sdcorev1alpha1.LoggingSpec) error {
	if logging == nil {
		return nil
	}
	u, err := url.Parse(logging.LokiURL)
	if err != nil {
		return fmt.Errorf("spec.logging.lokiURL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf(
			"spec.logging.lokiURL must use http or https, got scheme %q",
			u.Scheme,
		)
	}
	if u.Host == "" {
		return fmt.Errorf("spec.logging.lokiURL is missing a host")
	}
	return nil
}
