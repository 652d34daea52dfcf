package nrf

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
	"github.com/sdcore/nrf-operator/pkg/cert"
	"github.com/sdcore/nrf-operator/pkg/defaults"
)

// Data keys the integrations publish their negotiated data under.
const (
	// DatabaseURIsKey holds comma-separated MongoDB connection strings in
	// the database Secret. The first entry is used.
	DatabaseURIsKey = "uris"

	// WebUIURLKey holds the shared configuration service endpoint in the
	// core config ConfigMap.
	WebUIURLKey = "webuiUrl"
)

// Integration names as surfaced in conditions and metrics.
const (
	integrationDatabase     = "database"
	integrationConfig       = "sdcore-config"
	integrationCertificates = "certificates"
)

// certState classifies the certificate bundle for status reporting.
type certState int

const (
	certAbsent certState = iota
	certExpired
	certValid
)

// relationState is the negotiated integration data a reconciliation acts
// on. It is rebuilt from scratch on every pass and never mutated after
// gathering, so a crash between gather and apply loses nothing.
type relationState struct {
	// missing lists integrations whose referenced object does not exist.
	missing []string

	// waiting lists integrations whose object exists but has not
	// published its data yet.
	waiting []string

	databaseURI string
	webuiURL    string

	bundle     *cert.Bundle
	certState  certState
	certIssued bool

	// tlsSecretName is the Secret the workload mounts certificate
	// material from, regardless of whether it is external or issued.
	tlsSecretName string
}

// ready reports whether every integration has negotiated its data and the
// certificate bundle is usable, i.e. whether configuration may be written.
func (s *relationState) ready() bool {
	return len(s.missing) == 0 && len(s.waiting) == 0 && s.certState == certValid
}

// gatherState reads every integration input fresh. Only transport errors
// are returned; absent or un-negotiated integrations are recorded on the
// state for status computation.
func (r *NRFReconciler) gatherState(
	ctx context.Context,
	nrf *sdcorev1alpha1.NRF,
	resolved defaults.Resolved,
) (*relationState, error) {
	state := &relationState{}

	if err := r.gatherDatabase(ctx, nrf, state); err != nil {
		return nil, err
	}
	if err := r.gatherCoreConfig(ctx, nrf, state); err != nil {
		return nil, err
	}
	if err := r.gatherCertificates(ctx, nrf, resolved, state); err != nil {
		return nil, err
	}

	return state, nil
}

func (r *NRFReconciler) gatherDatabase(
	ctx context.Context,
	nrf *sdcorev1alpha1.NRF,
	state *relationState,
) error {
	secret := &corev1.Secret{}
	err := r.Get(ctx, types.NamespacedName{
		Name:      nrf.Spec.Database.SecretRef.Name,
		Namespace: nrf.Namespace,
	}, secret)
	if err != nil {
		if apierrors.IsNotFound(err) {
			state.missing = append(state.missing, integrationDatabase)
			return nil
		}
		return fmt.Errorf("failed to get database secret: %w", err)
	}

	uris := strings.TrimSpace(string(secret.Data[DatabaseURIsKey]))
	if uris == "" {
		state.waiting = append(state.waiting, integrationDatabase)
		return nil
	}

	state.databaseURI = strings.TrimSpace(strings.Split(uris, ",")[0])
	return nil
}

func (r *NRFReconciler) gatherCoreConfig(
	ctx context.Context,
	nrf *sdcorev1alpha1.NRF,
	state *relationState,
) error {
	cm := &corev1.ConfigMap{}
	err := r.Get(ctx, types.NamespacedName{
		Name:      nrf.Spec.Config.ConfigMapRef.Name,
		Namespace: nrf.Namespace,
	}, cm)
	if err != nil {
		if apierrors.IsNotFound(err) {
			state.missing = append(state.missing, integrationConfig)
			return nil
		}
		return fmt.Errorf("failed to get core config configmap: %w", err)
	}

	url := strings.TrimSpace(cm.Data[WebUIURLKey])
	if url == "" {
		state.waiting = append(state.waiting, integrationConfig)
		return nil
	}

	state.webuiURL = url
	return nil
}

// gatherCertificates resolves the certificate bundle. An externally
// referenced Secret is validated as-is; without one the operator issues
// and rotates the bundle itself, so the issued path never ends up expired.
func (r *NRFReconciler) gatherCertificates(
	ctx context.Context,
	nrf *sdcorev1alpha1.NRF,
	resolved defaults.Resolved,
	state *relationState,
) error {
	if nrf.Spec.TLS != nil && nrf.Spec.TLS.SecretRef != nil {
		return r.gatherExternalBundle(ctx, nrf, state)
	}

	bundle, issued, err := r.Issuer.EnsureBundle(
		ctx,
		nrf,
		resolved.CommonName,
		[]string{serviceHost(nrf)},
	)
	if err != nil {
		return fmt.Errorf("failed to ensure certificate bundle: %w", err)
	}

	state.bundle = bundle
	state.certState = certValid
	state.certIssued = issued
	state.tlsSecretName = cert.BundleSecretName(nrf.Name)
	return nil
}

func (r *NRFReconciler) gatherExternalBundle(
	ctx context.Context,
	nrf *sdcorev1alpha1.NRF,
	state *relationState,
) error {
	secret := &corev1.Secret{}
	err := r.Get(ctx, types.NamespacedName{
		Name:      nrf.Spec.TLS.SecretRef.Name,
		Namespace: nrf.Namespace,
	}, secret)
	if err != nil {
		if apierrors.IsNotFound(err) {
			state.missing = append(state.missing, integrationCertificates)
			return nil
		}
		return fmt.Errorf("failed to get TLS secret: %w", err)
	}

	state.tlsSecretName = secret.Name

	bundle := cert.FromSecret(secret)
	if bundle == nil {
		// A partial bundle is treated as absent, never partially applied.
		state.certState = certAbsent
		state.waiting = append(state.waiting, integrationCertificates)
		return nil
	}

	if err := bundle.Verify(r.now()); err != nil {
		if errors.Is(err, cert.ErrExpired) {
			// Expired bundles request renewal; the last-good rendered
			// config stays in place until a fresh bundle shows up.
			state.bundle = bundle
			state.certState = certExpired
			return nil
		}
		// Malformed bundles are indistinguishable from absent ones.
		state.certState = certAbsent
		state.waiting = append(state.waiting, integrationCertificates)
		return nil
	}

	state.bundle = bundle
	state.certState = certValid
	return nil
}

// now allows tests to pin the clock used for certificate validation.
func (r *NRFReconciler) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}
