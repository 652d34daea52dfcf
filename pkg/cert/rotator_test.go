package cert

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func rotatorClient(t *testing.T, objs ...client.Object) client.Client {
	t.Helper()
	scheme := runtime.NewScheme()
	_ = corev1.AddToScheme(scheme)
	return fake.NewClientBuilder().WithScheme(scheme).WithObjects(objs...).Build()
}

func rotatorOptions(certDir string) RotatorOptions {
	return RotatorOptions{
		Namespace:        "operator-system",
		CASecretName:     "nrf-operator-webhook-ca",
		ServerSecretName: "nrf-operator-webhook-server-cert",
		ServiceName:      "nrf-operator-webhook-service",
		CertDir:          certDir,
	}
}

func TestRotatorReconcilePKI(t *testing.T) {
	t.Parallel()

	c := rotatorClient(t)
	r := NewRotator(c, rotatorOptions(t.TempDir()))

	var hookBundle []byte
	r.Options.PostReconcileHook = func(_ context.Context, caBundle []byte) error {
		hookBundle = caBundle
		return nil
	}

	if err := r.reconcilePKI(t.Context(), false); err != nil {
		t.Fatalf("reconcilePKI failed: %v", err)
	}

	caSecret := &corev1.Secret{}
	if err := c.Get(t.Context(),
		types.NamespacedName{Name: r.Options.CASecretName, Namespace: r.Options.Namespace}, caSecret); err != nil {
		t.Fatalf("CA Secret should exist: %v", err)
	}
	if len(hookBundle) == 0 {
		t.Error("PostReconcileHook should receive the CA bundle")
	}
	if string(hookBundle) != string(caSecret.Data[CAKey]) {
		t.Error("hook CA bundle should match the stored CA certificate")
	}

	serverSecret := &corev1.Secret{}
	if err := c.Get(t.Context(),
		types.NamespacedName{Name: r.Options.ServerSecretName, Namespace: r.Options.Namespace}, serverSecret); err != nil {
		t.Fatalf("server cert Secret should exist: %v", err)
	}
	firstCert := string(serverSecret.Data[CertKey])

	// A healthy PKI is left alone.
	if err := r.reconcilePKI(t.Context(), false); err != nil {
		t.Fatalf("second reconcilePKI failed: %v", err)
	}
	if err := c.Get(t.Context(),
		types.NamespacedName{Name: r.Options.ServerSecretName, Namespace: r.Options.Namespace}, serverSecret); err != nil {
		t.Fatalf("server cert Secret should exist: %v", err)
	}
	if string(serverSecret.Data[CertKey]) != firstCert {
		t.Error("healthy server cert should not be rotated")
	}
}

func TestRotatorRecreatesCorruptCA(t *testing.T) {
	t.Parallel()

	corruptCA := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "nrf-operator-webhook-ca",
			Namespace: "operator-system",
		},
		Data: map[string][]byte{
			CAKey:    []byte("nonsense"),
			"ca.key": []byte("nonsense"),
		},
	}

	c := rotatorClient(t, corruptCA)
	r := NewRotator(c, rotatorOptions(t.TempDir()))

	ca, err := r.ensureCA(t.Context())
	if err != nil {
		t.Fatalf("ensureCA failed: %v", err)
	}
	if ca.Cert == nil {
		t.Fatal("ensureCA should return usable CA artifacts")
	}

	stored := &corev1.Secret{}
	if err := c.Get(t.Context(),
		types.NamespacedName{Name: r.Options.CASecretName, Namespace: r.Options.Namespace}, stored); err != nil {
		t.Fatalf("CA Secret should exist: %v", err)
	}
	if string(stored.Data[CAKey]) == "nonsense" {
		t.Error("corrupt CA data should have been replaced")
	}
}

func TestRotatorBootstrapWaitsForProjection(t *testing.T) {
	t.Parallel()

	certDir := t.TempDir()
	c := rotatorClient(t)
	r := NewRotator(c, rotatorOptions(certDir))

	done := make(chan error, 1)
	go func() {
		done <- r.Bootstrap(t.Context())
	}()

	// Simulate the kubelet projecting the Secret onto disk.
	deadline := time.After(10 * time.Second)
	for {
		serverSecret := &corev1.Secret{}
		err := c.Get(t.Context(),
			types.NamespacedName{Name: r.Options.ServerSecretName, Namespace: r.Options.Namespace},
			serverSecret)
		if err == nil && len(serverSecret.Data[CertKey]) > 0 {
			if err := os.WriteFile(
				filepath.Join(certDir, CertKey), serverSecret.Data[CertKey], 0o600); err != nil {
				t.Fatalf("failed to project cert: %v", err)
			}
			break
		}

		select {
		case <-deadline:
			t.Fatal("server cert Secret never appeared")
		case <-time.After(50 * time.Millisecond):
		}
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Bootstrap failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Bootstrap did not finish after projection")
	}
}
