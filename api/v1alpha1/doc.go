/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package v1alpha1 defines the API types for the NRF Operator.
//
// This package contains the Go type definitions for the Custom Resources in
// the sdcore.io API group. These types are used by kubebuilder to generate:
//   - CustomResourceDefinitions (CRDs)
//   - DeepCopy methods
//   - Client code
//
// # Custom Resources
//
// The API defines a single user-facing resource:
//
//   - NRF: a 5G SD-Core Network Repository Function deployment. Users point
//     it at the Secrets and ConfigMaps carrying its external integrations
//     (MongoDB connection data, shared core configuration, an optional TLS
//     bundle, an optional Loki push endpoint) and the operator keeps the
//     workload converged against them.
//
// # Managed Resources
//
//	NRF
//	├── ConfigMap <name>-nrfcfg        (rendered workload configuration)
//	├── Secret    <name>-tls           (only when the bundle is operator-issued)
//	├── StatefulSet <name>             (the NRF workload)
//	├── Service   <name>               (SBI + metrics ports)
//	└── ConfigMap <name>-nrf-peering   (published NRF URL for dependent NFs)
//
// # Versioning
//
// This is the v1alpha1 version, indicating the API is in early development
// and may change in backward-incompatible ways.
package v1alpha1
