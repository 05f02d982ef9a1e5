package main

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/physver/trustchain/internal/ledger"
	"github.com/physver/trustchain/pkg/client"
)

// newSubmitCmd hashes a data file with Keccak-256, signs the hash with the
// device's private key, and records the submission on the ledger.
func newSubmitCmd() *cobra.Command {
	var (
		deviceID string
		keyFile  string
		dataFile string
		dataURI  string
		metadata string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Sign and submit a data record",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(dataFile)
			if err != nil {
				return err
			}
			hash := ledger.HashContent(data)
			hashBytes, err := hex.DecodeString(hash)
			if err != nil {
				return err
			}

			priv, err := loadPrivateKey(keyFile)
			if err != nil {
				return err
			}

			var sig []byte
			switch k := priv.(type) {
			case ed25519.PrivateKey:
				sig = ed25519.Sign(k, hashBytes)
			case *ecdsa.PrivateKey:
				digest := sha256.Sum256(hashBytes)
				sig, err = ecdsa.SignASN1(rand.Reader, k, digest[:])
				if err != nil {
					return fmt.Errorf("sign: %w", err)
				}
			default:
				return fmt.Errorf("unsupported private key type %T", priv)
			}

			sub, err := newClient().Submit(cmd.Context(), client.SubmitRequest{
				DeviceID:  deviceID,
				DataHash:  hash,
				Signature: sig,
				DataURI:   dataURI,
				Metadata:  metadata,
			})
			if err != nil {
				return err
			}
			return printJSON(sub)
		},
	}

	cmd.Flags().StringVar(&deviceID, "device", "", "device identifier (64 hex chars)")
	cmd.Flags().StringVar(&keyFile, "key", "device.key", "PEM private key file from keygen")
	cmd.Flags().StringVar(&dataFile, "data", "", "data file to hash and submit")
	cmd.Flags().StringVar(&dataURI, "uri", "", "URI where the data is stored")
	cmd.Flags().StringVar(&metadata, "metadata", "", "optional metadata JSON")
	for _, f := range []string{"device", "data", "uri"} {
		if err := cmd.MarkFlagRequired(f); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var start, count uint64

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Page through the submission audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := newClient().History(cmd.Context(), start, count)
			if err != nil {
				return err
			}
			return printJSON(page)
		},
	}
	cmd.Flags().Uint64Var(&start, "start", 0, "first sequence number")
	cmd.Flags().Uint64Var(&count, "count", 50, "maximum entries to return")
	return cmd
}

func newShowCmd() *cobra.Command {
	var details bool

	cmd := &cobra.Command{
		Use:   "show <data-hash>",
		Short: "Show a ledger record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if details {
				d, err := newClient().GetSubmissionDetails(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(d)
			}
			sub, err := newClient().GetSubmission(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(sub)
		},
	}
	cmd.Flags().BoolVar(&details, "details", false, "include device and verifier registry snapshots")
	return cmd
}

func newIntegrityCmd() *cobra.Command {
	var dataFile string

	cmd := &cobra.Command{
		Use:   "integrity <data-hash>",
		Short: "Check a data file against a recorded hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(dataFile)
			if err != nil {
				return err
			}
			valid, err := newClient().VerifyIntegrity(cmd.Context(), args[0], data)
			if err != nil {
				return err
			}
			if !valid {
				fmt.Println("INVALID: data does not match the recorded hash")
				os.Exit(1)
			}
			fmt.Println("valid: data matches the recorded hash")
			return nil
		},
	}
	cmd.Flags().StringVar(&dataFile, "data", "", "data file to check")
	if err := cmd.MarkFlagRequired("data"); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return cmd
}
