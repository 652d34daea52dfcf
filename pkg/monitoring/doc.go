// Package monitoring holds the operator's observability surface: Prometheus
// collectors registered on the controller-runtime metrics registry, typed
// recorder helpers the controllers call, and OTel tracing helpers.
package monitoring
