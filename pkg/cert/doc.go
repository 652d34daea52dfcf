// Package cert manages the X.509 material the NRF operator deals in.
//
// It covers three concerns:
//
//  1. Bundle validation: a certificate bundle (cert, key, CA chain) is
//     either fully present and currently valid, or it is treated as absent.
//     Partial bundles are never applied.
//
//  2. Issuance: when no external bundle is referenced, the operator issues
//     the NRF's SBI certificate from an operator-managed CA and rotates it
//     ahead of expiry (see Issuer).
//
//  3. Webhook serving certs: a background Rotator keeps the admission
//     server's certificate fresh (see Rotator).
package cert
