// Package handlers implements the admission control logic for NRF resources.
//
// It contains implementations of the controller-runtime CustomDefaulter and
// CustomValidator interfaces:
//
//  1. Mutation (NRFDefaulter):
//     Intercepts CREATE and UPDATE requests to make implicit defaults
//     explicit on the stored spec. The defaulter delegates to pkg/defaults,
//     the same module the reconciler resolves from, so values applied at
//     admission time are identical to those the reconciler acts on.
//
//  2. Validation (NRFValidator):
//     Intercepts CREATE and UPDATE requests to enforce semantic rules that
//     the OpenAPI schema cannot express, such as port collisions and the
//     shape of integration references.
package handlers
