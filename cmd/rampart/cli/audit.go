package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rampart-sec/rampart/internal/audit"
)

// RegisterAuditCommands adds audit trail commands.
func RegisterAuditCommands(root *cobra.Command) {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and verify the audit trail",
	}

	auditCmd.AddCommand(newAuditVerifyCmd())
	auditCmd.AddCommand(newAuditListCmd())

	root.AddCommand(auditCmd)
}

func newAuditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit log hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			valid, count, err := audit.Verify(engine.AuditDB)
			if err != nil {
				return fmt.Errorf("verifying audit chain: %w", err)
			}
			if !valid {
				return fmt.Errorf("audit chain broken after %d valid records", count)
			}

			fmt.Printf("Audit chain intact: %d records.\n", count)
			return nil
		},
	}
}

func newAuditListCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit records, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			records, err := audit.List(engine.AuditDB, limit)
			if err != nil {
				return err
			}

			if asJSON {
				printJSON(records)
				return nil
			}
			if len(records) == 0 {
				fmt.Println("No audit records yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tEVENT\tSOURCE\tRUN\tDETAIL")
			for _, rec := range records {
				ts := rec.Timestamp
				if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
					ts = parsed.Format("2006-01-02 15:04:05")
				}
				run := "-"
				if rec.RunUUID != "" {
					run = rec.RunUUID[:8]
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					rec.ID, ts, rec.Event, rec.Source, run, truncate(rec.Detail, 48))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum records to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}
