package handlers

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/webhook"

	sdcorev1alpha1 "github.com/sdcore/nrf-operator/api/v1alpha1"
	"github.com/sdcore/nrf-operator/pkg/defaults"
	"github.com/sdcore/nrf-operator/pkg/monitoring"
)

// +kubebuilder:webhook:path=/mutate-sdcore-io-v1alpha1-nrf,mutating=true,failurePolicy=fail,sideEffects=None,groups=sdcore.io,resources=nrfs,verbs=create;update,versions=v1alpha1,name=mnrf.kb.io,admissionReviewVersions=v1

// NRFDefaulter handles the mutation of NRF resources.
type NRFDefaulter struct{}

var _ webhook.CustomDefaulter = &NRFDefaulter{}

// NewNRFDefaulter creates a new defaulter handler.
func NewNRFDefaulter() *NRFDefaulter {
	return &NRFDefaulter{}
}

// Default implements webhook.CustomDefaulter. It promotes the invisible
// defaults to explicit spec fields so the stored object always shows the
// values the reconciler will act on.
func (d *NRFDefaulter) Default(ctx context.Context, obj runtime.Object) (err error) {
	start := time.Now()
	defer func() {
		monitoring.RecordWebhookRequest("default", "nrf", err, time.Since(start))
	}()

	nrf, ok := obj.(*sdcorev1alpha1.NRF)
	if !ok {
		return fmt.Errorf("expected NRF, got %T", obj)
	}

	defaults.PopulateSpecDefaults(nrf)
	return nil
}
