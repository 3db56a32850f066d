package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rampart-sec/rampart/internal/history"
)

// RegisterRunCommands adds run history commands.
func RegisterRunCommands(root *cobra.Command) {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "View operation run history",
	}

	runsCmd.AddCommand(newRunsListCmd())
	runsCmd.AddCommand(newRunsShowCmd())
	runsCmd.AddCommand(newRunsPruneCmd())

	root.AddCommand(runsCmd)
}

func newRunsListCmd() *cobra.Command {
	var (
		opFilter string
		limit    int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			runs, err := history.NewManager(engine.MetadataDB).List(opFilter, limit)
			if err != nil {
				return err
			}

			if asJSON {
				printJSON(runs)
				return nil
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded yet. Retrieve facts with: rampart facts")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "UUID\tOP\tSTATUS\tSTARTED\tGATEWAYS\tSNAPSHOT")
			for _, r := range runs {
				snap := "-"
				if r.SnapshotUUID != "" {
					snap = r.SnapshotUUID[:8]
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.UUID[:8], r.OpID, r.Status,
					r.StartedAt.Format("2006-01-02 15:04"),
					r.GatewayCount, snap,
				)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&opFilter, "op", "", "Filter by operation ID")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func newRunsPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old runs, keeping the newest",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			removed, err := history.NewManager(engine.MetadataDB).Prune(keep)
			if err != nil {
				return err
			}

			fmt.Printf("Pruned %d runs (keeping the newest %d; snapshot-linked runs are kept).\n", removed, keep)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 50, "Runs to keep")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-uuid>",
		Short: "Show details of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			run, err := history.NewManager(engine.MetadataDB).Get(args[0])
			if err != nil {
				return err
			}

			if asJSON {
				printJSON(run)
				return nil
			}

			fmt.Printf("Run: %s\n", run.UUID)
			fmt.Printf("  Operation: %s@%s\n", run.OpID, run.OpVersion)
			fmt.Printf("  Status:    %s\n", run.Status)
			fmt.Printf("  Operator:  %s\n", run.CreatedBy)
			fmt.Printf("  Started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05 UTC"))
			if run.CompletedAt != nil {
				fmt.Printf("  Completed: %s (%s)\n",
					run.CompletedAt.Format("2006-01-02 15:04:05 UTC"),
					run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond),
				)
			}
			fmt.Printf("  Gateways:  %d\n", run.GatewayCount)
			if run.SnapshotUUID != "" {
				fmt.Printf("  Snapshot:  %s\n", run.SnapshotUUID)
			}
			if len(run.Inputs) > 0 {
				inputsJSON, _ := json.Marshal(run.Inputs)
				fmt.Printf("  Inputs:    %s\n", inputsJSON)
			}
			if run.ErrorDetail != nil {
				fmt.Printf("  Error:     %s\n", *run.ErrorDetail)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}
