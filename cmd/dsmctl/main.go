// dsmctl is the operator CLI for the trust chain service: generating device
// keypairs, minting admin tokens, managing verifiers and devices, and
// submitting signed data records.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	adminToken string
)

func main() {
	root := &cobra.Command{
		Use:   "dsmctl",
		Short: "Operator CLI for the physical-verification trust chain",
		Long: `dsmctl manages the trust chain service: verifier and device lifecycle,
device keypair generation, admin token minting, and data submission.

Admin operations need a token; mint one with "dsmctl admin token" using the
same secret the server was started with, then pass it via --admin-token or
the TRUSTCHAIN_ADMIN_TOKEN environment variable.`,
	}

	root.PersistentFlags().StringVar(&serverURL, "server", envOr("TRUSTCHAIN_SERVER", "http://localhost:8080"), "trust chain service base URL")
	root.PersistentFlags().StringVar(&adminToken, "admin-token", os.Getenv("TRUSTCHAIN_ADMIN_TOKEN"), "admin capability token")

	root.AddCommand(
		newKeygenCmd(),
		newAdminCmd(),
		newVerifierCmd(),
		newDeviceCmd(),
		newSubmitCmd(),
		newHistoryCmd(),
		newShowCmd(),
		newIntegrityCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dsmctl:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
