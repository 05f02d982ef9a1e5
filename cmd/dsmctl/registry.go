package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/physver/trustchain/pkg/client"
)

func newClient() *client.Client {
	opts := []client.Option{}
	if adminToken != "" {
		opts = append(opts, client.WithAdminToken(adminToken))
	}
	return client.New(serverURL, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVerifierCmd() *cobra.Command {
	verifier := &cobra.Command{
		Use:   "verifier",
		Short: "Manage trust-registry verifiers",
	}

	verifier.AddCommand(&cobra.Command{
		Use:   "register <address>",
		Short: "Register a verifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newClient().RegisterVerifier(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(v)
		},
	})

	verifier.AddCommand(&cobra.Command{
		Use:   "show <address>",
		Short: "Show a verifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newClient().GetVerifier(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(v)
		},
	})

	verifier.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all verifiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			verifiers, err := newClient().ListVerifiers(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(verifiers)
		},
	})

	verifier.AddCommand(&cobra.Command{
		Use:   "activate <address>",
		Short: "Reactivate a verifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().SetVerifierActive(cmd.Context(), args[0], true)
		},
	})

	verifier.AddCommand(&cobra.Command{
		Use:   "deactivate <address>",
		Short: "Deactivate a verifier (its devices can no longer submit)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().SetVerifierActive(cmd.Context(), args[0], false)
		},
	})

	verifier.AddCommand(&cobra.Command{
		Use:   "devices <address>",
		Short: "List the devices bound to a verifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := newClient().ListVerifierDevices(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(devices)
		},
	})

	return verifier
}

func newDeviceCmd() *cobra.Command {
	device := &cobra.Command{
		Use:   "device",
		Short: "Manage trust-registry DSM devices",
	}

	var pubKeyFile string
	register := &cobra.Command{
		Use:   "register <device-id> <verifier-address>",
		Short: "Register a device under a verifier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := loadPublicKeyHex(pubKeyFile)
			if err != nil {
				return err
			}
			d, err := newClient().RegisterDevice(cmd.Context(), args[0], args[1], pub)
			if err != nil {
				return err
			}
			return printJSON(d)
		},
	}
	register.Flags().StringVar(&pubKeyFile, "public-key", "device.pub", "hex public key file from keygen")
	if err := register.MarkFlagRequired("public-key"); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	device.AddCommand(register)

	device.AddCommand(&cobra.Command{
		Use:   "show <device-id>",
		Short: "Show a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newClient().GetDevice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(d)
		},
	})

	device.AddCommand(&cobra.Command{
		Use:   "activate <device-id>",
		Short: "Reactivate a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().SetDeviceActive(cmd.Context(), args[0], true)
		},
	})

	device.AddCommand(&cobra.Command{
		Use:   "deactivate <device-id>",
		Short: "Deactivate a device so it can no longer submit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().SetDeviceActive(cmd.Context(), args[0], false)
		},
	})

	return device
}
