package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rampart-sec/rampart/internal/core"
)

// RegisterStatusCommands adds the status command.
func RegisterStatusCommands(root *cobra.Command) {
	root.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	var credName string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show home directory state and server reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			st, err := engine.Status()
			if err != nil {
				return err
			}

			fmt.Printf("Home:         %s\n", st.HomeDir)
			if st.ServerURL == "" {
				fmt.Println("Server:       (not configured)")
			} else {
				fmt.Printf("Server:       %s (API %s)\n", st.ServerURL, st.APIVersion)
			}
			switch {
			case !st.VaultPresent:
				fmt.Println("Vault:        not created")
			case engine.Vault == nil:
				fmt.Println("Vault:        present (locked)")
			default:
				fmt.Printf("Vault:        open, %d stored key(s)\n", st.CredentialCount)
			}
			fmt.Printf("Runs:         %d\n", st.RunCount)
			fmt.Printf("Snapshots:    %d\n", st.SnapshotCount)
			if st.AuditChainValid {
				fmt.Printf("Audit:        %d records, chain intact\n", st.AuditRecords)
			} else {
				fmt.Printf("Audit:        %d records, CHAIN BROKEN\n", st.AuditRecords)
			}

			probeStatus(cmd.Context(), engine, credName)
			return nil
		},
	}

	cmd.Flags().StringVar(&credName, "cred", "", "Credential to probe the server with")

	return cmd
}

// probeStatus checks server reachability without ever prompting. A missing
// credential or URL turns into a skip line, not an error.
func probeStatus(ctx context.Context, engine *core.Engine, credName string) {
	if engine.Config.Server.URL == "" {
		fmt.Println("Reachability: skipped (no server configured)")
		return
	}

	client, err := engine.NewSMCClient(credName)
	if err != nil {
		fmt.Printf("Reachability: skipped (%v)\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		fmt.Printf("Reachability: FAILED (%v)\n", err)
		return
	}
	fmt.Println("Reachability: management center reachable")
}
