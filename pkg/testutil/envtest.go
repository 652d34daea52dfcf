package testutil

import (
	"os"
	"testing"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/envtest"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
)

// SetUpEnvtest starts a Kubernetes API server for integration testing.
//
// This requires the envtest binaries to be available; tests calling this are
// skipped when KUBEBUILDER_ASSETS is not set so that the unit test suite runs
// without them.
//
// The environment is stopped when the test finishes.
func SetUpEnvtest(t testing.TB, crdPaths ...string) *rest.Config {
	t.Helper()

	if os.Getenv("KUBEBUILDER_ASSETS") == "" {
		t.Skip("KUBEBUILDER_ASSETS not set; skipping envtest-based test")
	}

	testEnv := &envtest.Environment{
		CRDDirectoryPaths:     crdPaths,
		ErrorIfCRDPathMissing: len(crdPaths) > 0,
		// Increase timeouts to handle resource contention when many tests run in parallel
		ControlPlaneStartTimeout: 60 * time.Second,
		ControlPlaneStopTimeout:  60 * time.Second,
	}

	cfg, err := testEnv.Start()
	if err != nil {
		t.Fatalf("Setting up with envtest failed, %v", err)
	}

	t.Cleanup(func() {
		if err := testEnv.Stop(); err != nil {
			t.Fatalf("Failed to stop envtest, %v", err)
		}
	})

	return cfg
}

// SetUpClient creates a direct Kubernetes client.
//
// This client bypasses any manager cache and reads straight from the API
// server. Use it to verify what is actually stored, as opposed to
// mgr.GetClient() which sees the controller's cached view.
func SetUpClient(t testing.TB, cfg *rest.Config, scheme *runtime.Scheme) client.Client {
	t.Helper()

	k8sClient, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		t.Fatalf("Failed to setup a Kubernetes client: %v", err)
	}

	return k8sClient
}

// SetUpManager creates a controller-runtime manager for testing.
//
// The manager is created but NOT started; register controllers first and then
// call StartManager.
func SetUpManager(t testing.TB, cfg *rest.Config, scheme *runtime.Scheme) manager.Manager {
	t.Helper()

	mgr, err := ctrl.NewManager(cfg, ctrl.Options{
		Scheme:         scheme,
		LeaderElection: false,
		Metrics: metricsserver.Options{
			BindAddress: "0",
		},
	})
	if err != nil {
		t.Fatalf("Failed to set up manager: %v", err)
	}

	return mgr
}

// StartManager starts the manager in a background goroutine. The manager is
// stopped when the test finishes via t.Context() cancellation.
func StartManager(t testing.TB, mgr manager.Manager) {
	t.Helper()

	go func() {
		if err := mgr.Start(t.Context()); err != nil {
			t.Errorf("Manager failed: %v", err)
		}
	}()

	if !mgr.GetCache().WaitForCacheSync(t.Context()) {
		t.Fatal("Cache failed to sync")
	}
}

// SetUpEnvtestManager combines SetUpEnvtest, SetUpManager, and StartManager
// into a single call:
//
//	mgr := testutil.SetUpEnvtestManager(t, scheme, "path/to/crds")
//	reconciler := &NRFReconciler{Client: mgr.GetClient(), Scheme: scheme}
//	reconciler.SetupWithManager(mgr)
//
// Note: envtest does not run kube-controller-manager, so garbage collection
// via owner references does not happen here.
func SetUpEnvtestManager(t testing.TB, scheme *runtime.Scheme, crdPaths ...string) manager.Manager {
	t.Helper()

	cfg := SetUpEnvtest(t, crdPaths...)
	mgr := SetUpManager(t, cfg, scheme)
	StartManager(t, mgr)

	return mgr
}
