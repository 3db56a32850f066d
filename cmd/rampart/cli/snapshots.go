package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rampart-sec/rampart/internal/core"
	"github.com/rampart-sec/rampart/internal/diff"
	"github.com/rampart-sec/rampart/internal/snapshot"
)

// RegisterSnapshotCommands adds snapshot management commands.
func RegisterSnapshotCommands(root *cobra.Command) {
	snapCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage stored facts snapshots",
	}

	snapCmd.AddCommand(newSnapshotsListCmd())
	snapCmd.AddCommand(newSnapshotsShowCmd())
	snapCmd.AddCommand(newSnapshotsDiffCmd())
	snapCmd.AddCommand(newSnapshotsRmCmd())
	snapCmd.AddCommand(newSnapshotsPruneCmd())

	root.AddCommand(snapCmd)
}

func snapshotStore(engine *core.Engine) *snapshot.Store {
	return snapshot.NewStore(engine.MetadataDB, engine.HomeDir).WithAudit(engine.AuditLogger)
}

func newSnapshotsListCmd() *cobra.Command {
	var (
		elementKey string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			records, err := snapshotStore(engine).List(elementKey)
			if err != nil {
				return err
			}

			if asJSON {
				printJSON(records)
				return nil
			}
			if len(records) == 0 {
				fmt.Println("No snapshots stored yet. Retrieve with: rampart facts --save")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "UUID\tKEY\tFILTER\tELEMENTS\tBYTES\tCREATED\tRUN")
			for _, rec := range records {
				filter := rec.Filter
				if filter == "" {
					filter = "-"
				}
				run := "-"
				if rec.RunUUID != nil {
					run = (*rec.RunUUID)[:8]
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					rec.UUID[:8], rec.ElementKey, filter,
					rec.ElementCount, rec.ByteSize,
					rec.CreatedAt.Format("2006-01-02 15:04"), run,
				)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&elementKey, "key", "", "Filter by element key (external_gateway, gateway_profile, vpn_site)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func newSnapshotsShowCmd() *cobra.Command {
	var infoOnly bool

	cmd := &cobra.Command{
		Use:   "show <snapshot-uuid>",
		Short: "Print a snapshot document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			store := snapshotStore(engine)
			rec, err := store.Get(args[0])
			if err != nil {
				return err
			}

			if infoOnly {
				fmt.Printf("Snapshot: %s\n", rec.UUID)
				fmt.Printf("  Element key: %s\n", rec.ElementKey)
				if rec.Filter != "" {
					fmt.Printf("  Filter:      %s\n", rec.Filter)
				}
				fmt.Printf("  Elements:    %d\n", rec.ElementCount)
				fmt.Printf("  Size:        %d bytes\n", rec.ByteSize)
				fmt.Printf("  Hash:        %s\n", rec.ContentHash)
				fmt.Printf("  Created:     %s by %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05 UTC"), rec.CreatedBy)
				if rec.RunUUID != nil {
					fmt.Printf("  Run:         %s\n", *rec.RunUUID)
				}
				return nil
			}

			content, err := store.ReadContent(rec)
			if err != nil {
				return err
			}
			os.Stdout.Write(content)
			return nil
		},
	}

	cmd.Flags().BoolVar(&infoOnly, "info", false, "Show metadata instead of the document")

	return cmd
}

func newSnapshotsDiffCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diff <older-uuid> <newer-uuid>",
		Short: "Compare two snapshots gateway by gateway",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			store := snapshotStore(engine)

			older, err := store.Get(args[0])
			if err != nil {
				return err
			}
			newer, err := store.Get(args[1])
			if err != nil {
				return err
			}

			olderDoc, err := store.ReadContent(older)
			if err != nil {
				return err
			}
			newerDoc, err := store.ReadContent(newer)
			if err != nil {
				return err
			}

			report, err := diff.Compare(olderDoc, newerDoc)
			if err != nil {
				return err
			}

			if asJSON {
				printJSON(report)
				return nil
			}

			fmt.Printf("%s -> %s: %s\n", older.UUID[:8], newer.UUID[:8], report.Summary())
			for _, name := range report.Added {
				fmt.Printf("  + %s\n", name)
			}
			for _, name := range report.Removed {
				fmt.Printf("  - %s\n", name)
			}
			for _, delta := range report.Changed {
				fmt.Printf("  ~ %s\n", delta.Name)
				for _, ch := range delta.Changes {
					fmt.Printf("      %s: %v -> %v\n", ch.Path, ch.From, ch.To)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the report as JSON")

	return cmd
}

func newSnapshotsRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <snapshot-uuid>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			rec, err := snapshotStore(engine).Delete(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Deleted snapshot %s (%s).\n", rec.UUID[:8], rec.ElementKey)
			return nil
		},
	}
}

func newSnapshotsPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old snapshots, keeping the newest per element key",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			removed, err := snapshotStore(engine).Prune(keep)
			if err != nil {
				return err
			}

			fmt.Printf("Pruned %d snapshots (keeping the newest %d per element key).\n", removed, keep)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 5, "Snapshots to keep per element key")

	return cmd
}
