package cert

import (
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

// ownerSecret stands in for the NRF resource; any registered object type
// works as the bundle owner.
func ownerSecret() *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "test-nrf",
			Namespace: "default",
			UID:       "owner-uid",
		},
	}
}

func TestIssuerEnsureBundle(t *testing.T) {
	t.Parallel()

	scheme := runtime.NewScheme()
	_ = corev1.AddToScheme(scheme)

	owner := ownerSecret()
	fakeClient := fake.NewClientBuilder().WithScheme(scheme).WithObjects(owner).Build()
	issuer := &Issuer{Client: fakeClient, Recorder: record.NewFakeRecorder(10)}

	bundle, rotated, err := issuer.EnsureBundle(
		t.Context(), owner, "nrf.sdcore", []string{"test-nrf.default.svc.cluster.local"})
	if err != nil {
		t.Fatalf("EnsureBundle failed: %v", err)
	}
	if !rotated {
		t.Error("first EnsureBundle should report issuance")
	}
	if err := bundle.Verify(time.Now()); err != nil {
		t.Errorf("issued bundle does not verify: %v", err)
	}

	caSecret := &corev1.Secret{}
	if err := fakeClient.Get(t.Context(),
		types.NamespacedName{Name: CASecretName("test-nrf"), Namespace: "default"}, caSecret); err != nil {
		t.Fatalf("CA Secret should exist: %v", err)
	}
	if len(caSecret.OwnerReferences) != 1 {
		t.Error("CA Secret should be owned by the NRF")
	}

	bundleSecret := &corev1.Secret{}
	if err := fakeClient.Get(t.Context(),
		types.NamespacedName{Name: BundleSecretName("test-nrf"), Namespace: "default"}, bundleSecret); err != nil {
		t.Fatalf("Bundle Secret should exist: %v", err)
	}
	if bundleSecret.Type != corev1.SecretTypeTLS {
		t.Errorf("Bundle Secret type = %s, want kubernetes.io/tls", bundleSecret.Type)
	}
	if FromSecret(bundleSecret) == nil {
		t.Error("Bundle Secret should hold a complete bundle")
	}

	// A second call with healthy material reissues nothing.
	second, rotated, err := issuer.EnsureBundle(
		t.Context(), owner, "nrf.sdcore", []string{"test-nrf.default.svc.cluster.local"})
	if err != nil {
		t.Fatalf("second EnsureBundle failed: %v", err)
	}
	if rotated {
		t.Error("second EnsureBundle should not reissue")
	}
	if string(second.CertPEM) != string(bundle.CertPEM) {
		t.Error("second EnsureBundle should return the stored bundle unchanged")
	}
}

func TestIssuerEnsureBundle_RotatesCorruptLeaf(t *testing.T) {
	t.Parallel()

	scheme := runtime.NewScheme()
	_ = corev1.AddToScheme(scheme)

	owner := ownerSecret()
	corrupt := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      BundleSecretName("test-nrf"),
			Namespace: "default",
		},
		Type: corev1.SecretTypeTLS,
		Data: map[string][]byte{
			CertKey: []byte("nonsense"),
			KeyKey:  []byte("nonsense"),
			CAKey:   []byte("nonsense"),
		},
	}

	fakeClient := fake.NewClientBuilder().WithScheme(scheme).WithObjects(owner, corrupt).Build()
	issuer := &Issuer{Client: fakeClient, Recorder: record.NewFakeRecorder(10)}

	bundle, rotated, err := issuer.EnsureBundle(
		t.Context(), owner, "nrf.sdcore", []string{"test-nrf.default.svc.cluster.local"})
	if err != nil {
		t.Fatalf("EnsureBundle failed: %v", err)
	}
	if !rotated {
		t.Error("corrupt leaf should force reissuance")
	}
	if err := bundle.Verify(time.Now()); err != nil {
		t.Errorf("reissued bundle does not verify: %v", err)
	}

	stored := &corev1.Secret{}
	if err := fakeClient.Get(t.Context(),
		types.NamespacedName{Name: BundleSecretName("test-nrf"), Namespace: "default"}, stored); err != nil {
		t.Fatalf("Bundle Secret should exist: %v", err)
	}
	if string(stored.Data[CertKey]) == "nonsense" {
		t.Error("corrupt leaf data should have been replaced")
	}
}

func TestIssuerEnsureBundle_RecreatesCorruptCA(t *testing.T) {
	t.Parallel()

	scheme := runtime.NewScheme()
	_ = corev1.AddToScheme(scheme)

	owner := ownerSecret()
	corruptCA := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      CASecretName("test-nrf"),
			Namespace: "default",
		},
		Data: map[string][]byte{
			CAKey:    []byte("nonsense"),
			"ca.key": []byte("nonsense"),
		},
	}

	fakeClient := fake.NewClientBuilder().WithScheme(scheme).WithObjects(owner, corruptCA).Build()
	issuer := &Issuer{Client: fakeClient, Recorder: record.NewFakeRecorder(10)}

	bundle, rotated, err := issuer.EnsureBundle(
		t.Context(), owner, "nrf.sdcore", []string{"test-nrf.default.svc.cluster.local"})
	if err != nil {
		t.Fatalf("EnsureBundle failed: %v", err)
	}
	if !rotated {
		t.Error("corrupt CA should force reissuance")
	}
	if err := bundle.Verify(time.Now()); err != nil {
		t.Errorf("bundle issued from recreated CA does not verify: %v", err)
	}
}
