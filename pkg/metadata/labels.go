package metadata

import (
	"maps"
)

// Standard Kubernetes label keys following kubernetes.io conventions.
//
// See: https://kubernetes.io/docs/concepts/overview/working-with-objects/common-labels/
const (
	// LabelAppName is the standard label key for the application name.
	LabelAppName = "app.kubernetes.io/name"

	// LabelAppInstance is the standard label key for the unique instance name.
	LabelAppInstance = "app.kubernetes.io/instance"

	// LabelAppComponent is the standard label key for the component within the
	// application.
	LabelAppComponent = "app.kubernetes.io/component"

	// LabelAppPartOf is the standard label key for the name of a higher level
	// application this one is part of.
	LabelAppPartOf = "app.kubernetes.io/part-of"

	// LabelAppManagedBy is the standard label key for the tool managing the
	// resource.
	LabelAppManagedBy = "app.kubernetes.io/managed-by"
)

const (
	// AppNameNRF is the fixed application name for all NRF resources.
	AppNameNRF = "nrf"

	// PartOfSDCore identifies the encompassing 5G core deployment.
	PartOfSDCore = "sdcore"

	// ManagedByNRFOperator identifies the operator managing these resources.
	ManagedByNRFOperator = "nrf-operator"
)

const (
	// ComponentWorkload identifies the NRF workload itself.
	ComponentWorkload = "workload"

	// ComponentConfig identifies rendered configuration artifacts.
	ComponentConfig = "config"

	// ComponentTLS identifies certificate material.
	ComponentTLS = "tls"

	// ComponentPeering identifies the published NRF connection details
	// consumed by dependent network functions.
	ComponentPeering = "peering"
)

const (
	// LabelNetworkFunction identifies the 5G network function type on
	// resources that carry one.
	LabelNetworkFunction = "sdcore.io/network-function"
)

// BuildStandardLabels returns a map of standard kubernetes labels.
// instance should be the name of the NRF CR, component one of the
// Component* constants.
func BuildStandardLabels(instance, component string) map[string]string {
	return map[string]string{
		LabelAppName:         AppNameNRF,
		LabelAppInstance:     instance,
		LabelAppComponent:    component,
		LabelAppPartOf:       PartOfSDCore,
		LabelAppManagedBy:    ManagedByNRFOperator,
		LabelNetworkFunction: AppNameNRF,
	}
}

// selectorLabelsAllowList contains the keys that are allowed in label
// selectors. These must be stable identity labels, not mutable metadata.
var selectorLabelsAllowList = map[string]bool{
	LabelAppName:      true,
	LabelAppInstance:  true,
	LabelAppComponent: true,
}

// GetSelectorLabels filters the provided labels map to return only those
// keys allowed in resource selectors (identity labels).
//
// This separates stable identity labels from mutable metadata labels,
// ensuring that changes to mutable metadata do not trigger recreation of
// immutable resources (like StatefulSet selectors).
func GetSelectorLabels(labels map[string]string) map[string]string {
	selectorLabels := make(map[string]string)
	for k, v := range labels {
		if selectorLabelsAllowList[k] {
			selectorLabels[k] = v
		}
	}
	return selectorLabels
}

// MergeLabels merges custom labels with standard labels.
//
// Note that standard labels take precedence over custom labels to prevent
// users from overriding operator-managed labels.
func MergeLabels(standardLabels, customLabels map[string]string) map[string]string {
	merged := make(map[string]string)
	maps.Copy(merged, customLabels)
	maps.Copy(merged, standardLabels)
	return merged
}
