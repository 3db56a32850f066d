package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rampart-sec/rampart/internal/op"
)

// RegisterOpsCommands adds operation inspection and execution commands.
func RegisterOpsCommands(root *cobra.Command) {
	opsCmd := &cobra.Command{
		Use:   "ops",
		Short: "Inspect and execute retrieval operations",
	}

	opsCmd.AddCommand(newOpsListCmd())
	opsCmd.AddCommand(newOpsInfoCmd())
	opsCmd.AddCommand(newOpsRunCmd())

	root.AddCommand(opsCmd)
}

// builtinRegistry returns the static operation registry. Listing and
// inspection need no engine and therefore no passphrase.
func builtinRegistry() *op.Registry {
	reg := op.NewRegistry(zerolog.Nop())
	op.RegisterBuiltinOps(reg, nil, zerolog.Nop())
	return reg
}

func newOpsListCmd() *cobra.Command {
	var (
		keyword    string
		objectType string
		riskClass  string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			metas := builtinRegistry().Search(keyword, objectType, riskClass)

			if asJSON {
				printJSON(metas)
				return nil
			}
			if len(metas) == 0 {
				fmt.Println("No operations match.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tVERSION\tRISK\tOBJECT TYPES\tDESCRIPTION")
			for _, m := range metas {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					m.ID, m.Version, m.RiskClass,
					strings.Join(m.ObjectTypes, ","),
					truncate(m.Description, 48),
				)
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&keyword, "search", "", "Keyword filter on id, name, and description")
	cmd.Flags().StringVar(&objectType, "type", "", "Filter by touched object type")
	cmd.Flags().StringVar(&riskClass, "risk", "", "Filter by risk class (read_only, write, destructive)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func newOpsInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <op-id>",
		Short: "Show detailed operation information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			operation, ok := builtinRegistry().Get(args[0])
			if !ok {
				return fmt.Errorf("operation not found: %s", args[0])
			}
			meta := operation.Meta()

			fmt.Printf("Operation: %s\n", meta.Name)
			fmt.Printf("  ID:           %s\n", meta.ID)
			fmt.Printf("  Version:      %s\n", meta.Version)
			fmt.Printf("  Risk:         %s\n", meta.RiskClass)
			fmt.Printf("  Object types: %s\n", strings.Join(meta.ObjectTypes, ", "))
			fmt.Printf("  Author:       %s\n", meta.Author)
			fmt.Printf("  Description:  %s\n", meta.Description)

			if len(meta.Inputs) > 0 {
				fmt.Printf("  Inputs:\n")
				for _, in := range meta.Inputs {
					spec := fmt.Sprintf("%s (%s)", in.Name, in.Type)
					if in.Required {
						spec += " required"
					}
					fmt.Printf("    %-28s %s\n", spec, in.Description)
				}
			}
			if len(meta.Outputs) > 0 {
				fmt.Printf("  Outputs:\n")
				for _, out := range meta.Outputs {
					fmt.Printf("    %-28s %s\n", fmt.Sprintf("%s (%s)", out.Name, out.Type), out.Description)
				}
			}
			if len(meta.References) > 0 {
				fmt.Printf("  References:\n")
				for _, ref := range meta.References {
					fmt.Printf("    %s\n", ref)
				}
			}
			return nil
		},
	}
}

func newOpsRunCmd() *cobra.Command {
	var (
		dryRun   bool
		save     bool
		credName string
	)

	cmd := &cobra.Command{
		Use:   "run <op-id> [input=value ...]",
		Short: "Execute an operation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseInputArgs(args[1:])
			if err != nil {
				return err
			}

			if dryRun {
				engine, err := openEngine()
				if err != nil {
					return err
				}
				defer engine.Close()

				outcome, err := newOfflineRunner(engine).Execute(cmd.Context(), op.RunConfig{
					OpID:     args[0],
					Inputs:   inputs,
					DryRun:   true,
					Operator: operatorName(),
				})
				if err != nil {
					return err
				}

				fmt.Printf("Dry run (run %s): %s\n", outcome.Run.UUID[:8], outcome.DryRun.Description)
				if len(outcome.DryRun.APICalls) > 0 {
					fmt.Println("  Would call:")
					for _, call := range outcome.DryRun.APICalls {
						fmt.Printf("    %s\n", call)
					}
				}
				return nil
			}

			live, err := openEngineForAPI()
			if err != nil {
				return err
			}
			defer live.Close()

			runner, err := newRunner(live, credName)
			if err != nil {
				return err
			}

			outcome, err := runner.Execute(cmd.Context(), op.RunConfig{
				OpID:         args[0],
				Inputs:       inputs,
				SaveSnapshot: save,
				Operator:     operatorName(),
			})
			if err != nil {
				return err
			}
			if outcome.Result.Error != nil {
				return fmt.Errorf("run %s failed: %w", outcome.Run.UUID[:8], outcome.Result.Error)
			}

			fmt.Printf("Run %s finished: %s\n", outcome.Run.UUID[:8], outcome.Run.Status)
			if outcome.Snapshot != nil {
				fmt.Printf("Snapshot saved: %s\n", outcome.Snapshot.UUID[:8])
			}
			printJSON(outcome.Result.Outputs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Describe planned API calls without contacting the server")
	cmd.Flags().BoolVar(&save, "save", false, "Store the produced document as a snapshot")
	cmd.Flags().StringVar(&credName, "cred", "", "Named vault credential to use")

	return cmd
}

// parseInputArgs turns key=value pairs into typed operation inputs.
// Booleans and integers are recognized; comma-separated values become
// string lists.
func parseInputArgs(args []string) (map[string]any, error) {
	inputs := make(map[string]any)
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q (expected key=value)", arg)
		}
		switch {
		case value == "true":
			inputs[key] = true
		case value == "false":
			inputs[key] = false
		case strings.Contains(value, ","):
			inputs[key] = strings.Split(value, ",")
		default:
			if n, err := strconv.Atoi(value); err == nil {
				inputs[key] = n
			} else {
				inputs[key] = value
			}
		}
	}
	return inputs, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
