package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/physver/trustchain/internal/identity"
)

// newAdminCmd mints admin capability tokens. The secret and issuer URL must
// match what the server was configured with (admin.secret, server.base_url).
func newAdminCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Administrative helpers",
	}

	var (
		secret   string
		issuer   string
		operator string
		ttl      time.Duration
	)

	token := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin capability token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			tok, err := identity.NewAdminIssuer([]byte(secret), issuer, ttl).Issue(operator)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	token.Flags().StringVar(&secret, "secret", "", "shared admin secret (same as the server's admin.secret)")
	token.Flags().StringVar(&issuer, "issuer", "http://localhost:8080", "issuer URL (same as the server's base URL)")
	token.Flags().StringVar(&operator, "operator", "dsmctl", "operator label recorded in audit logs")
	token.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	admin.AddCommand(token)
	return admin
}
