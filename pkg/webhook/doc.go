// Package webhook provides the entry point for the NRF operator's admission
// control layer.
//
// This package orchestrates the setup of the controller-runtime webhook
// server, including:
//
//  1. Certificate Management: It delegates to pkg/cert's Rotator to keep the
//     serving certificate fresh (self-signed strategy) and patches the CA
//     bundle into the WebhookConfigurations, or trusts externally provisioned
//     certs on disk (external strategy, e.g. cert-manager).
//
//  2. Handler Registration: It registers the admission handlers (from the
//     'handlers' subpackage) to their corresponding API paths
//     (/mutate-..., /validate-...).
//
// Usage:
//
//	if err := webhook.Setup(mgr, opts); err != nil {
//	    setupLog.Error(err, "unable to setup webhook")
//	    os.Exit(1)
//	}
package webhook
