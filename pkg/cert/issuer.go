package cert

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// RotationThreshold is the buffer before expiry at which certs are rotated (30 days).
const RotationThreshold = 30 * 24 * time.Hour

// CASecretName returns the name of the operator CA Secret for an NRF.
func CASecretName(nrfName string) string {
	return nrfName + "-ca"
}

// BundleSecretName returns the name of the issued bundle Secret for an NRF.
func BundleSecretName(nrfName string) string {
	return nrfName + "-tls"
}

// Issuer issues and rotates operator-managed certificate bundles. It plays
// the provider role of the certificates integration when no external bundle
// is referenced: every reconciliation that finds the bundle missing, near
// expiry or not chained to the current CA reissues it.
type Issuer struct {
	Client   client.Client
	Recorder record.EventRecorder
}

// EnsureBundle guarantees a valid bundle Secret for the owner and returns
// it, along with whether material was (re)issued during this call. Both
// the CA Secret and the bundle Secret are owned by the NRF resource so
// they are garbage-collected with it.
func (i *Issuer) EnsureBundle(
	ctx context.Context,
	owner client.Object,
	commonName string,
	dnsNames []string,
) (*Bundle, bool, error) {
	ca, caRotated, err := i.ensureCA(ctx, owner)
	if err != nil {
		return nil, false, err
	}

	bundle, issued, err := i.ensureLeaf(ctx, owner, ca, commonName, dnsNames)
	if err != nil {
		return nil, false, err
	}

	return bundle, caRotated || issued, nil
}

func (i *Issuer) ensureCA(ctx context.Context, owner client.Object) (*CAArtifacts, bool, error) {
	name := CASecretName(owner.GetName())
	secret := &corev1.Secret{}
	err := i.Client.Get(
		ctx,
		types.NamespacedName{Name: name, Namespace: owner.GetNamespace()},
		secret,
	)
	if err != nil {
		if !errors.IsNotFound(err) {
			return nil, false, fmt.Errorf("failed to get CA secret: %w", err)
		}
		ca, createErr := i.createCA(ctx, owner, name)
		return ca, true, createErr
	}

	ca, err := ParseCA(secret.Data[CAKey], secret.Data["ca.key"])
	if err != nil {
		log.FromContext(ctx).Error(err, "CA secret is corrupt, recreating")
		if err := i.Client.Delete(ctx, secret); err != nil {
			return nil, false, fmt.Errorf("failed to delete corrupt CA secret: %w", err)
		}
		ca, createErr := i.createCA(ctx, owner, name)
		return ca, true, createErr
	}

	if time.Until(ca.Cert.NotAfter) < RotationThreshold {
		log.FromContext(ctx).Info("CA is near expiry, rotating")
		if err := i.Client.Delete(ctx, secret); err != nil {
			return nil, false, fmt.Errorf("failed to delete expiring CA secret: %w", err)
		}
		ca, createErr := i.createCA(ctx, owner, name)
		return ca, true, createErr
	}

	return ca, false, nil
}

func (i *Issuer) createCA(ctx context.Context, owner client.Object, name string) (*CAArtifacts, error) {
	ca, err := GenerateCA()
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA: %w", err)
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: owner.GetNamespace(),
		},
		Data: map[string][]byte{
			CAKey:    ca.CertPEM,
			"ca.key": ca.KeyPEM,
		},
	}
	if err := i.setOwner(owner, secret); err != nil {
		return nil, err
	}
	if err := i.Client.Create(ctx, secret); err != nil {
		return nil, fmt.Errorf("failed to create CA secret: %w", err)
	}

	i.event(secret, "Normal", "Generated", "Generated new NRF CA certificate")
	return ca, nil
}

func (i *Issuer) ensureLeaf(
	ctx context.Context,
	owner client.Object,
	ca *CAArtifacts,
	commonName string,
	dnsNames []string,
) (*Bundle, bool, error) {
	name := BundleSecretName(owner.GetName())
	secret := &corev1.Secret{}
	err := i.Client.Get(
		ctx,
		types.NamespacedName{Name: name, Namespace: owner.GetNamespace()},
		secret,
	)
	if err != nil {
		if !errors.IsNotFound(err) {
			return nil, false, fmt.Errorf("failed to get bundle secret: %w", err)
		}
		bundle, createErr := i.createLeaf(ctx, owner, ca, name, commonName, dnsNames)
		return bundle, true, createErr
	}

	bundle := FromSecret(secret)
	needsRotation := bundle == nil || bundle.NeedsRotation(time.Now(), RotationThreshold)
	if !needsRotation {
		// Reissue when the leaf no longer chains to the current CA.
		if err := bundle.Verify(time.Now()); err != nil {
			needsRotation = true
		}
	}
	if !needsRotation {
		return bundle, false, nil
	}

	artifacts, err := GenerateServerCert(ca, commonName, dnsNames)
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate server cert: %w", err)
	}
	secret.Data = map[string][]byte{
		CertKey: artifacts.CertPEM,
		KeyKey:  artifacts.KeyPEM,
		CAKey:   ca.CertPEM,
	}
	if err := i.Client.Update(ctx, secret); err != nil {
		return nil, false, fmt.Errorf("failed to update bundle secret: %w", err)
	}
	i.event(secret, "Normal", "Rotated", "Rotated NRF certificate bundle")

	return &Bundle{CertPEM: artifacts.CertPEM, KeyPEM: artifacts.KeyPEM, CAPEM: ca.CertPEM}, true, nil
}

func (i *Issuer) createLeaf(
	ctx context.Context,
	owner client.Object,
	ca *CAArtifacts,
	name, commonName string,
	dnsNames []string,
) (*Bundle, error) {
	artifacts, err := GenerateServerCert(ca, commonName, dnsNames)
	if err != nil {
		return nil, fmt.Errorf("failed to generate server cert: %w", err)
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: owner.GetNamespace(),
		},
		Type: corev1.SecretTypeTLS,
		Data: map[string][]byte{
			CertKey: artifacts.CertPEM,
			KeyKey:  artifacts.KeyPEM,
			CAKey:   ca.CertPEM,
		},
	}
	if err := i.setOwner(owner, secret); err != nil {
		return nil, err
	}
	if err := i.Client.Create(ctx, secret); err != nil {
		return nil, fmt.Errorf("failed to create bundle secret: %w", err)
	}

	i.event(secret, "Normal", "Generated", "Generated new NRF certificate bundle")
	return &Bundle{CertPEM: artifacts.CertPEM, KeyPEM: artifacts.KeyPEM, CAPEM: ca.CertPEM}, nil
}

func (i *Issuer) setOwner(owner client.Object, secret *corev1.Secret) error {
	if err := controllerutil.SetControllerReference(owner, secret, i.Client.Scheme()); err != nil {
		return fmt.Errorf("failed to set controller reference: %w", err)
	}
	return nil
}

func (i *Issuer) event(secret *corev1.Secret, eventtype, reason, message string) {
	if i.Recorder != nil {
		i.Recorder.Event(secret, eventtype, reason, message)
	}
}
