// RAMPART retrieves external VPN gateway facts from a network security
// management center and keeps an auditable record of every retrieval.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rampart-sec/rampart/cmd/rampart/cli"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "rampart",
		Short: "RAMPART — gateway facts retrieval for security management centers",
		Long: `RAMPART is an operator tool for retrieving external VPN gateway facts
from a Stonesoft-compatible security management center: gateway elements,
their gateway profiles, and their VPN site trees. Every retrieval is
recorded as a run, optionally snapshotted as a deterministic YAML
document, and comparable gateway by gateway across runs.`,
		Version:      version,
		SilenceUsage: true,
	}

	cli.RegisterGlobalFlags(rootCmd)

	// Register command groups
	cli.RegisterInitCommands(rootCmd)
	cli.RegisterFactsCommands(rootCmd)
	cli.RegisterElementCommands(rootCmd)
	cli.RegisterOpsCommands(rootCmd)
	cli.RegisterRunCommands(rootCmd)
	cli.RegisterSnapshotCommands(rootCmd)
	cli.RegisterCredsCommands(rootCmd)
	cli.RegisterAuditCommands(rootCmd)
	cli.RegisterExportCommands(rootCmd)
	cli.RegisterStatusCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
