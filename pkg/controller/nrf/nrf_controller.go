package nrf

import (
	"context"
	"fmt"
	"slices"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
	"github.com/sdcore/nrf-operator/pkg/cert"
	"github.com/sdcore/nrf-operator/pkg/defaults"
	"github.com/sdcore/nrf-operator/pkg/monitoring"
)

const (
	finalizerName = "nrf.sdcore.io/finalizer"

	fieldOwner = "nrf-operator"
)

// NRFReconciler reconciles an NRF object.
type NRFReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder
	Issuer   *cert.Issuer

	// Clock overrides the time source for certificate validation in tests.
	Clock func() time.Time
}

// Reconcile drives an NRF resource toward its desired state. Every pass
// re-reads all integration inputs fresh, so an interrupted pass is simply
// redone from scratch by the next one.
func (r *NRFReconciler) Reconcile(
	ctx context.Context,
	req ctrl.Request,
) (ctrl.Result, error) {
	ctx, span := monitoring.StartReconcileSpan(ctx, "Reconcile", req.Name, req.Namespace, "NRF")
	defer span.End()

	logger := log.FromContext(ctx)

	nrf := &sdcorev1alpha1.NRF{}
	if err := r.Get(ctx, req.NamespacedName, nrf); err != nil {
		if apierrors.IsNotFound(err) {
			logger.Info("NRF resource not found, ignoring")
			return ctrl.Result{}, nil
		}
		logger.Error(err, "Failed to get NRF")
		monitoring.RecordSpanError(span, err)
		return ctrl.Result{}, err
	}

	// Handle deletion
	if !nrf.DeletionTimestamp.IsZero() {
		return r.handleDeletion(ctx, nrf)
	}

	// Add finalizer if not present
	if !slices.Contains(nrf.Finalizers, finalizerName) {
		nrf.Finalizers = append(nrf.Finalizers, finalizerName)
		if err := r.Update(ctx, nrf); err != nil {
			logger.Error(err, "Failed to add finalizer")
			return ctrl.Result{}, err
		}
		r.Recorder.Event(nrf, "Normal", "Finalizer", "Added finalizer")
	}

	resolved := defaults.Resolve(&nrf.Spec)

	state, err := r.gatherState(ctx, nrf, resolved)
	if err != nil {
		logger.Error(err, "Failed to gather integration state")
		monitoring.RecordSpanError(span, err)
		return ctrl.Result{}, err
	}
	recordIntegrationMetrics(nrf, state)

	var configHash string
	if state.ready() {
		configHash, err = r.applyChildren(ctx, nrf, resolved, state)
		if err != nil {
			logger.Error(err, "Failed to apply child resources")
			r.Recorder.Eventf(nrf, "Warning", "FailedApply", "Failed to apply child resources: %v", err)
			monitoring.RecordSpanError(span, err)
			return ctrl.Result{}, err
		}
	} else {
		// No partial config: a missing or un-negotiated integration means
		// nothing is written, and an expired bundle keeps the last-good
		// configuration untouched.
		r.reportNotReady(nrf, state)
	}

	if err := r.updateStatus(ctx, nrf, state, resolved, configHash); err != nil {
		logger.Error(err, "Failed to update status")
		monitoring.RecordSpanError(span, err)
		return ctrl.Result{}, err
	}

	return ctrl.Result{RequeueAfter: r.nextCertCheck(state)}, nil
}

// applyChildren writes all managed resources for a fully negotiated state
// and returns the rendered configuration hash.
func (r *NRFReconciler) applyChildren(
	ctx context.Context,
	nrf *sdcorev1alpha1.NRF,
	resolved defaults.Resolved,
	state *relationState,
) (string, error) {
	configHash, err := r.reconcileConfigMap(ctx, nrf, resolved, state)
	if err != nil {
		return "", err
	}

	if err := r.reconcileStatefulSet(ctx, nrf, resolved, state, configHash); err != nil {
		return "", err
	}
	if err := r.reconcileService(ctx, nrf, resolved); err != nil {
		return "", err
	}
	if err := r.reconcilePeeringConfigMap(ctx, nrf, resolved); err != nil {
		return "", err
	}

	return configHash, nil
}

// reconcileConfigMap renders and applies the workload configuration. The
// write is skipped when the rendered content is identical to what is
// already stored, so re-running with unchanged inputs rewrites nothing.
func (r *NRFReconciler) reconcileConfigMap(
	ctx context.Context,
	nrf *sdcorev1alpha1.NRF,
	resolved defaults.Resolved,
	state *relationState,
) (string, error) {
	desired, err := BuildConfigMap(nrf, resolved, state, r.Scheme)
	if err != nil {
		return "", fmt.Errorf("failed to build config ConfigMap: %w", err)
	}
	hash := configMapHash(desired)

	existing := &corev1.ConfigMap{}
	err = r.Get(ctx, types.NamespacedName{Name: desired.Name, Namespace: desired.Namespace}, existing)
	if err == nil && equality.Semantic.DeepEqual(existing.Data, desired.Data) {
		monitoring.RecordConfigRender(nrf.Name, nrf.Namespace, false)
		return hash, nil
	}
	if err != nil && !apierrors.IsNotFound(err) {
		return "", fmt.Errorf("failed to get config ConfigMap: %w", err)
	}

	desired.SetGroupVersionKind(corev1.SchemeGroupVersion.WithKind("ConfigMap"))
	if err := r.Patch(
		ctx,
		desired,
		client.Apply,
		client.ForceOwnership,
		client.FieldOwner(fieldOwner),
	); err != nil {
		return "", fmt.Errorf("failed to apply config ConfigMap: %w", err)
	}

	monitoring.RecordConfigRender(nrf.Name, nrf.Namespace, true)
	if nrf.Status.ConfigHash != "" && nrf.Status.ConfigHash != hash {
		// The hash stamp on the pod template changes with the content, so
		// a content change is exactly one workload restart.
		monitoring.RecordWorkloadRestart(nrf.Name, nrf.Namespace)
		r.Recorder.Event(nrf, "Normal", "ConfigChanged", "Workload configuration changed, restarting workload")
	}

	return hash, nil
}

// reconcileStatefulSet creates or updates the workload StatefulSet.
func (r *NRFReconciler) reconcileStatefulSet(
	ctx context.Context,
	nrf *sdcorev1alpha1.NRF,
	resolved defaults.Resolved,
	state *relationState,
	configHash string,
) error {
	desired, err := BuildStatefulSet(nrf, resolved, state, configHash, r.Scheme)
	if err != nil {
		return fmt.Errorf("failed to build StatefulSet: %w", err)
	}

	// Server Side Apply
	desired.SetGroupVersionKind(appsv1.SchemeGroupVersion.WithKind("StatefulSet"))
	if err := r.Patch(
		ctx,
		desired,
		client.Apply,
		client.ForceOwnership,
		client.FieldOwner(fieldOwner),
	); err != nil {
		return fmt.Errorf("failed to apply StatefulSet: %w", err)
	}

	return nil
}

// reconcileService creates or updates the SBI/metrics Service.
func (r *NRFReconciler) reconcileService(
	ctx context.Context,
	nrf *sdcorev1alpha1.NRF,
	resolved defaults.Resolved,
) error {
	desired, err := BuildService(nrf, resolved, r.Scheme)
	if err != nil {
		return fmt.Errorf("failed to build Service: %w", err)
	}

	// Server Side Apply
	desired.SetGroupVersionKind(corev1.SchemeGroupVersion.WithKind("Service"))
	if err := r.Patch(
		ctx,
		desired,
		client.Apply,
		client.ForceOwnership,
		client.FieldOwner(fieldOwner),
	); err != nil {
		return fmt.Errorf("failed to apply Service: %w", err)
	}

	return nil
}

// reconcilePeeringConfigMap publishes NRF connection details for
// dependent network functions.
func (r *NRFReconciler) reconcilePeeringConfigMap(
	ctx context.Context,
	nrf *sdcorev1alpha1.NRF,
	resolved defaults.Resolved,
) error {
	desired, err := BuildPeeringConfigMap(nrf, resolved, r.Scheme)
	if err != nil {
		return fmt.Errorf("failed to build peering ConfigMap: %w", err)
	}

	// Server Side Apply
	desired.SetGroupVersionKind(corev1.SchemeGroupVersion.WithKind("ConfigMap"))
	if err := r.Patch(
		ctx,
		desired,
		client.Apply,
		client.ForceOwnership,
		client.FieldOwner(fieldOwner),
	); err != nil {
		return fmt.Errorf("failed to apply peering ConfigMap: %w", err)
	}

	return nil
}

// reportNotReady emits events for the conditions that keep the workload
// unconfigured.
func (r *NRFReconciler) reportNotReady(nrf *sdcorev1alpha1.NRF, state *relationState) {
	for _, integration := range state.missing {
		r.Recorder.Eventf(nrf, "Warning", "MissingIntegration",
			"Required integration %q is not available", integration)
	}
	for _, integration := range state.waiting {
		r.Recorder.Eventf(nrf, "Normal", "WaitingForData",
			"Integration %q has not published its data yet", integration)
	}
	if state.certState == certExpired {
		r.Recorder.Event(nrf, "Warning", "RenewalRequested",
			"Certificate bundle is expired, requested renewal and withholding activation")
	}
}

// updateStatus recomputes and writes the NRF status.
func (r *NRFReconciler) updateStatus(
	ctx context.Context,
	nrf *sdcorev1alpha1.NRF,
	state *relationState,
	resolved defaults.Resolved,
	configHash string,
) error {
	var readyReplicas int32
	sts := &appsv1.StatefulSet{}
	err := r.Get(ctx, types.NamespacedName{Name: nrf.Name, Namespace: nrf.Namespace}, sts)
	if err == nil {
		readyReplicas = sts.Status.ReadyReplicas
	} else if !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to get StatefulSet for status: %w", err)
	}

	nrf.Status = computeStatus(nrf, state, resolved, configHash, readyReplicas)
	if err := r.Status().Update(ctx, nrf); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	monitoring.SetNRFInfo(nrf.Name, nrf.Namespace, string(nrf.Status.Phase))
	if state.bundle != nil {
		monitoring.SetCertificateExpiry(nrf.Name, nrf.Namespace, state.bundle.NotAfter())
	}

	return nil
}

// nextCertCheck schedules a wake-up before the bundle crosses its rotation
// threshold. Externally managed bundles get no events when time passes, so
// expiry has to be polled.
func (r *NRFReconciler) nextCertCheck(state *relationState) time.Duration {
	if state.bundle == nil || state.certState != certValid {
		return 0
	}
	until := state.bundle.NotAfter().Add(-cert.RotationThreshold).Sub(r.now())
	if until <= 0 {
		return time.Minute
	}
	return until
}

func recordIntegrationMetrics(nrf *sdcorev1alpha1.NRF, state *relationState) {
	ready := map[string]bool{
		monitoring.IntegrationDatabase:     true,
		monitoring.IntegrationConfig:       true,
		monitoring.IntegrationCertificates: state.certState == certValid,
	}
	for _, integration := range state.missing {
		ready[integration] = false
	}
	for _, integration := range state.waiting {
		ready[integration] = false
	}
	for integration, ok := range ready {
		monitoring.SetIntegrationReady(nrf.Name, nrf.Namespace, integration, ok)
	}
	monitoring.SetIntegrationReady(
		nrf.Name, nrf.Namespace, monitoring.IntegrationLogging, nrf.Spec.Logging != nil)
}

// handleDeletion handles cleanup when the NRF is being deleted.
func (r *NRFReconciler) handleDeletion(
	ctx context.Context,
	nrf *sdcorev1alpha1.NRF,
) (ctrl.Result, error) {
	logger := log.FromContext(ctx)

	if slices.Contains(nrf.Finalizers, finalizerName) {
		// Child resources carry owner references and are garbage-collected;
		// only the metric series need explicit cleanup.
		monitoring.DeleteNRFMetrics(nrf.Name, nrf.Namespace)

		nrf.Finalizers = slices.DeleteFunc(nrf.Finalizers, func(s string) bool {
			return s == finalizerName
		})
		if err := r.Update(ctx, nrf); err != nil {
			logger.Error(err, "Failed to remove finalizer")
			return ctrl.Result{}, err
		}
		r.Recorder.Event(nrf, "Normal", "Deleted", "Object finalized and deleted")
	}

	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager. Beyond owned
// resources, the referenced integration Secrets/ConfigMaps are watched so
// external edits re-trigger reconciliation.
func (r *NRFReconciler) SetupWithManager(
	mgr ctrl.Manager,
	opts ...controller.Options,
) error {
	controllerOpts := controller.Options{}
	if len(opts) > 0 {
		controllerOpts = opts[0]
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&sdcorev1alpha1.NRF{}).
		Owns(&appsv1.StatefulSet{}).
		Owns(&corev1.Service{}).
		Owns(&corev1.ConfigMap{}).
		Owns(&corev1.Secret{}).
		Watches(
			&corev1.Secret{},
			handler.EnqueueRequestsFromMapFunc(r.mapReferencedSecret),
		).
		Watches(
			&corev1.ConfigMap{},
			handler.EnqueueRequestsFromMapFunc(r.mapReferencedConfigMap),
		).
		WithOptions(controllerOpts).
		Complete(r)
}

// mapReferencedSecret enqueues every NRF in the Secret's namespace that
// references it as database or TLS source.
func (r *NRFReconciler) mapReferencedSecret(ctx context.Context, obj client.Object) []ctrl.Request {
	return r.mapReferencing(ctx, obj, func(nrf *sdcorev1alpha1.NRF) bool {
		if nrf.Spec.Database.SecretRef.Name == obj.GetName() {
			return true
		}
		return nrf.Spec.TLS != nil &&
			nrf.Spec.TLS.SecretRef != nil &&
			nrf.Spec.TLS.SecretRef.Name == obj.GetName()
	})
}

// mapReferencedConfigMap enqueues every NRF in the ConfigMap's namespace
// that references it as shared configuration source.
func (r *NRFReconciler) mapReferencedConfigMap(ctx context.Context, obj client.Object) []ctrl.Request {
	return r.mapReferencing(ctx, obj, func(nrf *sdcorev1alpha1.NRF) bool {
		return nrf.Spec.Config.ConfigMapRef.Name == obj.GetName()
	})
}

func (r *NRFReconciler) mapReferencing(
	ctx context.Context,
	obj client.Object,
	matches func(*sdcorev1alpha1.NRF) bool,
) []ctrl.Request {
	list := &sdcorev1alpha1.NRFList{}
	if err := r.List(ctx, list, client.InNamespace(obj.GetNamespace())); err != nil {
		log.FromContext(ctx).Error(err, "Failed to list NRFs for watch mapping")
		return nil
	}

	var requests []ctrl.Request
	for i := range list.Items {
		if matches(&list.Items[i]) {
			requests = append(requests, ctrl.Request{
				NamespacedName: types.NamespacedName{
					Name:      list.Items[i].Name,
					Namespace: list.Items[i].Namespace,
				},
			})
		}
	}
	return requests
}
