package cert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// RotatorOptions configures the webhook serving cert Rotator.
type RotatorOptions struct {
	// Required fields.
	Namespace        string
	CASecretName     string
	ServerSecretName string
	ServiceName      string

	// CertDir is the directory where the server cert is expected on disk.
	CertDir string

	// RotationInterval is how often the background rotation loop runs.
	// Defaults to 1 hour.
	RotationInterval time.Duration

	// PostReconcileHook is called after the CA and server cert have been
	// ensured, receiving the CA bundle PEM bytes. The webhook setup uses
	// this to patch the CA bundle into the WebhookConfigurations.
	PostReconcileHook func(ctx context.Context, caBundle []byte) error
}

// Rotator keeps the admission server's serving certificate fresh. It
// implements the controller-runtime Runnable interface so the manager runs
// the rotation loop for the lifetime of the process.
type Rotator struct {
	Client  client.Client
	Options RotatorOptions
}

// NewRotator creates a Rotator with the provided client and options.
func NewRotator(c client.Client, opts RotatorOptions) *Rotator {
	return &Rotator{Client: c, Options: opts}
}

// Bootstrap runs at startup to ensure the PKI is healthy before the webhook
// server starts. It blocks until the cert file on disk matches the Secret
// content (Kubelet projected volume propagation).
func (r *Rotator) Bootstrap(ctx context.Context) error {
	logger := log.FromContext(ctx)
	logger.Info("bootstrapping webhook PKI")

	if err := os.MkdirAll(r.Options.CertDir, 0o750); err != nil {
		return fmt.Errorf("failed to create cert directory: %w", err)
	}

	return r.reconcilePKI(ctx, true)
}

// Start runs the background rotation loop. It blocks until ctx is cancelled.
func (r *Rotator) Start(ctx context.Context) error {
	logger := log.FromContext(ctx).WithName("pki-rotation")
	logger.Info("starting PKI rotation loop")

	interval := r.Options.RotationInterval
	if interval == 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.reconcilePKI(ctx, false); err != nil {
				logger.Error(err, "periodic PKI reconciliation failed")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// reconcilePKI is the main control loop.
// 1. Ensure CA is valid.
// 2. Ensure the server cert is valid and signed by the CA.
// 3. Run PostReconcileHook (if set).
// 4. Wait for projection (bootstrap only).
func (r *Rotator) reconcilePKI(ctx context.Context, waitForProjection bool) error {
	ca, err := r.ensureCA(ctx)
	if err != nil {
		return err
	}

	serverCertPEM, err := r.ensureServerCert(ctx, ca)
	if err != nil {
		return err
	}

	if r.Options.PostReconcileHook != nil {
		if err := r.Options.PostReconcileHook(ctx, ca.CertPEM); err != nil {
			return fmt.Errorf("post-reconcile hook failed: %w", err)
		}
	}

	if waitForProjection {
		return r.waitForProjection(ctx, serverCertPEM)
	}
	return nil
}

func (r *Rotator) ensureCA(ctx context.Context) (*CAArtifacts, error) {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      r.Options.CASecretName,
			Namespace: r.Options.Namespace,
		},
	}

	err := r.Client.Get(
		ctx,
		types.NamespacedName{Name: r.Options.CASecretName, Namespace: r.Options.Namespace},
		secret,
	)
	if err != nil {
		if !errors.IsNotFound(err) {
			return nil, fmt.Errorf("failed to get CA secret: %w", err)
		}

		ca, err := GenerateCA()
		if err != nil {
			return nil, fmt.Errorf("failed to generate CA: %w", err)
		}
		secret.Data = map[string][]byte{
			CAKey:    ca.CertPEM,
			"ca.key": ca.KeyPEM,
		}
		if err := r.Client.Create(ctx, secret); err != nil {
			return nil, fmt.Errorf("failed to create CA secret: %w", err)
		}
		return ca, nil
	}

	ca, err := ParseCA(secret.Data[CAKey], secret.Data["ca.key"])
	if err != nil {
		log.FromContext(ctx).Error(err, "CA secret is corrupt, recreating")
		if err := r.Client.Delete(ctx, secret); err != nil {
			return nil, fmt.Errorf("failed to delete corrupt CA secret: %w", err)
		}
		return r.ensureCA(ctx)
	}

	if time.Until(ca.Cert.NotAfter) < RotationThreshold {
		log.FromContext(ctx).Info("CA is near expiry, rotating")
		if err := r.Client.Delete(ctx, secret); err != nil {
			return nil, fmt.Errorf("failed to delete expiring CA secret: %w", err)
		}
		return r.ensureCA(ctx)
	}

	return ca, nil
}

func (r *Rotator) ensureServerCert(ctx context.Context, ca *CAArtifacts) ([]byte, error) {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      r.Options.ServerSecretName,
			Namespace: r.Options.Namespace,
		},
	}

	dnsNames := []string{
		fmt.Sprintf("%s.%s.svc", r.Options.ServiceName, r.Options.Namespace),
		fmt.Sprintf("%s.%s.svc.cluster.local", r.Options.ServiceName, r.Options.Namespace),
	}

	err := r.Client.Get(
		ctx,
		types.NamespacedName{Name: r.Options.ServerSecretName, Namespace: r.Options.Namespace},
		secret,
	)
	if err != nil {
		if !errors.IsNotFound(err) {
			return nil, fmt.Errorf("failed to get server cert secret: %w", err)
		}

		artifacts, err := GenerateServerCert(ca, r.Options.ServiceName, dnsNames)
		if err != nil {
			return nil, fmt.Errorf("failed to generate server cert: %w", err)
		}
		secret.Data = map[string][]byte{
			CertKey: artifacts.CertPEM,
			KeyKey:  artifacts.KeyPEM,
		}
		if err := r.Client.Create(ctx, secret); err != nil {
			return nil, fmt.Errorf("failed to create server cert secret: %w", err)
		}
		return artifacts.CertPEM, nil
	}

	bundle := &Bundle{
		CertPEM: secret.Data[CertKey],
		KeyPEM:  secret.Data[KeyKey],
		CAPEM:   ca.CertPEM,
	}
	needsRotation := len(bundle.CertPEM) == 0 ||
		bundle.NeedsRotation(time.Now(), RotationThreshold) ||
		bundle.Verify(time.Now()) != nil

	if !needsRotation {
		return secret.Data[CertKey], nil
	}

	artifacts, err := GenerateServerCert(ca, r.Options.ServiceName, dnsNames)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new server cert: %w", err)
	}
	secret.Data = map[string][]byte{
		CertKey: artifacts.CertPEM,
		KeyKey:  artifacts.KeyPEM,
	}
	if err := r.Client.Update(ctx, secret); err != nil {
		return nil, fmt.Errorf("failed to update server cert secret: %w", err)
	}
	return artifacts.CertPEM, nil
}

func (r *Rotator) waitForProjection(ctx context.Context, expectedCertPEM []byte) error {
	logger := log.FromContext(ctx)
	return wait.PollUntilContextTimeout(
		ctx,
		100*time.Millisecond,
		2*time.Minute,
		true,
		func(ctx context.Context) (bool, error) {
			certPath := filepath.Join(r.Options.CertDir, CertKey)
			diskBytes, err := os.ReadFile(certPath) //nolint:gosec // path is from trusted config
			if err != nil {
				logger.V(1).Info("Waiting for certificate file", "path", certPath, "err", err)
				return false, nil
			}
			if string(diskBytes) == string(expectedCertPEM) {
				return true, nil
			}
			logger.V(1).Info("Certificate on disk does not match Secret yet")
			return false, nil
		},
	)
}
