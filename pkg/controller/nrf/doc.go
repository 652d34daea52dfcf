// Package nrf implements the controller reconciling NRF resources.
//
// Each reconciliation gathers the integration state the NRF depends on
// (database Secret, shared core configuration ConfigMap, certificate
// bundle), renders the workload configuration from it, applies the child
// resources with server-side apply, and recomputes status as a pure
// function of what was observed. No configuration is written until every
// required integration has negotiated its data.
package nrf
