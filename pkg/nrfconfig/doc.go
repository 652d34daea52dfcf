// Package nrfconfig renders the NRF workload configuration file (nrfcfg.yaml)
// and the log forwarder sidecar configuration.
//
// Rendering is a pure function of its inputs: identical inputs produce
// byte-identical output, which the controller relies on to decide whether a
// config write (and workload restart) is required at all.
package nrfconfig
