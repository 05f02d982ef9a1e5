// Package attest verifies DSM device signatures over content hashes.
//
// Two key types are accepted, matching what deployed DSM hardware emits:
//   - Ed25519, stored either as the raw 32-byte public key or as PKIX DER.
//   - ECDSA P-256, stored as PKIX (SubjectPublicKeyInfo) DER, with ASN.1
//     DER-encoded signatures (SEQUENCE { r INTEGER, s INTEGER }).
//
// Ed25519 devices sign the 32 dataHash bytes directly. ECDSA devices sign
// SHA-256(dataHash), since P-256 secure elements sign a digest.
package attest

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
)

// Supported key algorithms.
const (
	AlgEd25519   = "ed25519"
	AlgECDSAP256 = "ecdsa-p256"
)

// PublicKey is a parsed device public key bound at registration time.
type PublicKey struct {
	Algorithm string

	ed ed25519.PublicKey
	ec *ecdsa.PublicKey
}

// ParsePublicKey parses a device public key from its registered encoding.
// A 32-byte input is taken as a raw Ed25519 key; anything else must be
// PKIX DER holding an Ed25519 or ECDSA P-256 key.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty public key")
	}
	if len(b) == ed25519.PublicKeySize {
		return &PublicKey{Algorithm: AlgEd25519, ed: ed25519.PublicKey(b)}, nil
	}

	pub, err := x509.ParsePKIXPublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	switch k := pub.(type) {
	case ed25519.PublicKey:
		return &PublicKey{Algorithm: AlgEd25519, ed: k}, nil
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("unsupported ECDSA curve %q", k.Curve.Params().Name)
		}
		return &PublicKey{Algorithm: AlgECDSAP256, ec: k}, nil
	default:
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}
}

// Verify reports whether sig is a valid signature over message.
func (k *PublicKey) Verify(message, sig []byte) bool {
	switch k.Algorithm {
	case AlgEd25519:
		return len(sig) == ed25519.SignatureSize && ed25519.Verify(k.ed, message, sig)
	case AlgECDSAP256:
		digest := sha256.Sum256(message)
		return ecdsa.VerifyASN1(k.ec, digest[:], sig)
	default:
		return false
	}
}
