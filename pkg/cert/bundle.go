package cert

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
)

// Secret keys a certificate bundle is stored under, following the
// kubernetes.io/tls convention plus the CA chain.
const (
	CertKey = "tls.crt"
	KeyKey  = "tls.key"
	CAKey   = "ca.crt"
)

// Validation errors. ErrExpired is distinguished because the controller
// reacts to it by requesting renewal rather than treating the bundle as
// absent.
var (
	ErrBundleIncomplete = errors.New("certificate bundle is incomplete")
	ErrMalformed        = errors.New("certificate bundle is malformed")
	ErrExpired          = errors.New("certificate is expired")
	ErrKeyMismatch      = errors.New("private key does not match certificate")
)

// Bundle is a complete certificate bundle: leaf certificate, private key
// and CA chain. A Bundle value always has all three fields populated;
// partial data never becomes a Bundle.
type Bundle struct {
	CertPEM []byte
	KeyPEM  []byte
	CAPEM   []byte
}

// FromSecret extracts a bundle from a Secret's data. It returns nil when
// any of the three keys is missing or empty: a partial bundle is treated
// as absent, never partially applied.
func FromSecret(secret *corev1.Secret) *Bundle {
	if secret == nil {
		return nil
	}
	certPEM := secret.Data[CertKey]
	keyPEM := secret.Data[KeyKey]
	caPEM := secret.Data[CAKey]
	if len(certPEM) == 0 || len(keyPEM) == 0 || len(caPEM) == 0 {
		return nil
	}
	return &Bundle{CertPEM: certPEM, KeyPEM: keyPEM, CAPEM: caPEM}
}

// Verify checks that the bundle is currently usable: the certificate
// parses, is inside its validity window at the given instant, chains to
// the CA, and matches the private key.
func (b *Bundle) Verify(now time.Time) error {
	leaf, err := parseLeaf(b.CertPEM)
	if err != nil {
		return err
	}

	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return fmt.Errorf("%w: not valid after %s", ErrExpired, leaf.NotAfter.Format(time.RFC3339))
	}

	key, err := parseKey(b.KeyPEM)
	if err != nil {
		return err
	}
	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok || !pub.Equal(key.Public()) {
		return ErrKeyMismatch
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(b.CAPEM) {
		return fmt.Errorf("%w: unparseable CA chain", ErrMalformed)
	}
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: now,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return nil
}

// NotAfter returns the leaf certificate's expiry. The zero time is
// returned for malformed bundles.
func (b *Bundle) NotAfter() time.Time {
	leaf, err := parseLeaf(b.CertPEM)
	if err != nil {
		return time.Time{}
	}
	return leaf.NotAfter
}

// NeedsRotation reports whether the bundle should be reissued: expired,
// inside the rotation threshold before expiry, or malformed.
func (b *Bundle) NeedsRotation(now time.Time, threshold time.Duration) bool {
	leaf, err := parseLeaf(b.CertPEM)
	if err != nil {
		return true
	}
	return now.Add(threshold).After(leaf.NotAfter)
}

func parseLeaf(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: unparseable certificate PEM", ErrMalformed)
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return leaf, nil
}

func parseKey(keyPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("%w: unparseable key PEM", ErrMalformed)
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		if k, pkcs8Err := x509.ParsePKCS8PrivateKey(block.Bytes); pkcs8Err == nil {
			if ecKey, ok := k.(*ecdsa.PrivateKey); ok {
				return ecKey, nil
			}
			return nil, fmt.Errorf("%w: non-ECDSA private key", ErrMalformed)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return key, nil
}
