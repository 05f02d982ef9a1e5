package main

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/physver/trustchain/internal/attest"
)

// newKeygenCmd generates a device keypair: a PKCS#8 PEM private key and the
// hex-encoded public key in the form the trust registry accepts (raw 32
// bytes for Ed25519, PKIX DER for ECDSA P-256).
func newKeygenCmd() *cobra.Command {
	var (
		algorithm string
		outPrefix string
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a DSM device keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				priv crypto.PrivateKey
				pub  []byte
			)

			switch algorithm {
			case attest.AlgEd25519:
				pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
				if err != nil {
					return err
				}
				priv, pub = privKey, pubKey
			case attest.AlgECDSAP256:
				privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
				if err != nil {
					return err
				}
				der, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
				if err != nil {
					return err
				}
				priv, pub = privKey, der
			default:
				return fmt.Errorf("unsupported algorithm %q (want %s or %s)",
					algorithm, attest.AlgEd25519, attest.AlgECDSAP256)
			}

			der, err := x509.MarshalPKCS8PrivateKey(priv)
			if err != nil {
				return fmt.Errorf("encode private key: %w", err)
			}
			keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

			keyPath := outPrefix + ".key"
			pubPath := outPrefix + ".pub"
			if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
				return err
			}
			if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(pub)+"\n"), 0o644); err != nil {
				return err
			}

			fmt.Printf("wrote %s (%s private key) and %s (public key, hex)\n", keyPath, algorithm, pubPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", attest.AlgEd25519, "key algorithm: ed25519 or ecdsa-p256")
	cmd.Flags().StringVar(&outPrefix, "out", "device", "output file prefix")
	return cmd
}

// loadPrivateKey reads a PKCS#8 PEM private key written by keygen.
func loadPrivateKey(path string) (crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%s: not a PEM file", path)
	}
	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: parse private key: %w", path, err)
	}
	return priv, nil
}

// loadPublicKeyHex reads a hex public key file written by keygen.
func loadPublicKeyHex(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pub, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("%s: decode hex: %w", path, err)
	}
	return pub, nil
}
