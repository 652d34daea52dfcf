package webhook

import (
	"context"
	"fmt"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
	"github.com/sdcore/nrf-operator/pkg/cert"
	"github.com/sdcore/nrf-operator/pkg/webhook/handlers"
)

// Options contains the configuration required to set up the webhook server.
type Options struct {
	// Enable indicates whether to start the webhook server.
	Enable bool
	// CertStrategy defines how certificates are managed ("external" or "self-signed").
	CertStrategy string
	// CertDir is the directory where certificates should be read/written.
	CertDir string
	// Namespace is the operator's namespace (required for self-signed strategy).
	Namespace string
	// ServiceName is the operator's webhook service name (required for
	// self-signed strategy).
	ServiceName string
}

// Setup configures the webhook server, bootstraps the serving PKI (for the
// self-signed strategy), and registers the admission handlers with the manager.
func Setup(mgr ctrl.Manager, opts Options) error {
	if !opts.Enable {
		return nil
	}

	logger := mgr.GetLogger().WithName("webhook-setup")
	logger.Info("Setting up webhook server", "strategy", opts.CertStrategy)

	// 1. Certificate Management
	// If using self-signed certs, the PKI must be healthy and the CA bundle
	// patched into the WebhookConfigurations *before* the manager starts the
	// server.
	if opts.CertStrategy == "self-signed" {
		rotator := cert.NewRotator(mgr.GetClient(), cert.RotatorOptions{
			Namespace:        opts.Namespace,
			CASecretName:     CASecretName,
			ServerSecretName: ServerSecretName,
			ServiceName:      opts.ServiceName,
			CertDir:          opts.CertDir,
			PostReconcileHook: func(ctx context.Context, caBundle []byte) error {
				return PatchWebhookCABundle(ctx, mgr.GetClient(), caBundle)
			},
		})

		// Use a temporary context as the manager's context isn't started yet.
		if err := rotator.Bootstrap(context.Background()); err != nil {
			return fmt.Errorf("failed to bootstrap self-signed certificates: %w", err)
		}

		// The rotation loop runs for the lifetime of the manager.
		if err := mgr.Add(rotator); err != nil {
			return fmt.Errorf("failed to register PKI rotator: %w", err)
		}
	}

	// 2. Register Webhooks
	server := mgr.GetWebhookServer()

	// -- Mutating Webhook (Defaulter) --
	// Path: /mutate-sdcore-io-v1alpha1-nrf
	// This path MUST match the +kubebuilder:webhook annotation on the handler.
	server.Register(
		"/mutate-sdcore-io-v1alpha1-nrf",
		admission.WithCustomDefaulter(mgr.GetScheme(), &sdcorev1alpha1.NRF{}, handlers.NewNRFDefaulter()),
	)

	// -- Validating Webhook (NRF) --
	// Path: /validate-sdcore-io-v1alpha1-nrf
	server.Register(
		"/validate-sdcore-io-v1alpha1-nrf",
		admission.WithCustomValidator(mgr.GetScheme(), &sdcorev1alpha1.NRF{}, handlers.NewNRFValidator()),
	)

	return nil
}
