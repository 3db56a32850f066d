package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rampart-sec/rampart/internal/core"
	"github.com/rampart-sec/rampart/internal/creds"
)

// RegisterCredsCommands adds API key management commands.
func RegisterCredsCommands(root *cobra.Command) {
	credsCmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage management center API keys",
	}

	credsCmd.AddCommand(newCredsSetKeyCmd())
	credsCmd.AddCommand(newCredsStatusCmd())
	credsCmd.AddCommand(newCredsRmCmd())

	root.AddCommand(credsCmd)
}

func newCredsSetKeyCmd() *cobra.Command {
	var (
		name   string
		apiKey string
	)

	cmd := &cobra.Command{
		Use:   "set-key",
		Short: "Store an API key in the vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngineWithVault()
			if err != nil {
				return err
			}
			defer engine.Close()

			if apiKey == "" {
				apiKey, err = promptSecret("API key: ")
				if err != nil {
					return err
				}
			}

			if err := engine.CredsBroker().Store(name, apiKey); err != nil {
				return err
			}

			storedAs := name
			if storedAs == "" {
				storedAs = creds.DefaultName
			}
			fmt.Printf("API key stored as %q.\n", storedAs)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Credential name (default: default)")
	cmd.Flags().StringVar(&apiKey, "key", "", "API key value (prompted when omitted)")

	return cmd
}

func newCredsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active credential and stored keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase, err := vaultPassphrase()
			if err != nil {
				return err
			}
			engine, err := core.Open(homeOverride, passphrase)
			if err != nil {
				return err
			}
			defer engine.Close()

			broker := engine.CredsBroker()

			resolved, err := broker.Resolve("")
			switch {
			case err != nil:
				fmt.Printf("Active key: none (%v)\n", err)
			case resolved.Source == creds.SourceVault:
				fmt.Printf("Active key: vault:%s (fingerprint %s)\n", resolved.Name, resolved.Fingerprint)
			default:
				fmt.Printf("Active key: %s (fingerprint %s)\n", resolved.Source, resolved.Fingerprint)
			}

			if engine.Vault == nil {
				fmt.Println("Vault:      not created (run 'rampart init' with a passphrase)")
				return nil
			}

			stored := broker.List()
			if len(stored) == 0 {
				fmt.Println("Vault:      open, no stored keys")
				return nil
			}

			fmt.Printf("Vault:      open, %d stored key(s)\n\n", len(stored))
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tFINGERPRINT")
			for _, info := range stored {
				fmt.Fprintf(w, "%s\t%s\n", info.Name, info.Fingerprint)
			}
			w.Flush()
			return nil
		},
	}
}

func newCredsRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngineWithVault()
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.CredsBroker().Remove(args[0]); err != nil {
				return err
			}

			fmt.Printf("Removed API key %q.\n", args[0])
			return nil
		},
	}
}
