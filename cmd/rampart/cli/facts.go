package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rampart-sec/rampart/internal/op"
	sdk "github.com/rampart-sec/rampart/pkg/sdk/v1"
)

// RegisterFactsCommands adds the facts retrieval command.
func RegisterFactsCommands(root *cobra.Command) {
	root.AddCommand(newFactsCmd())
}

func newFactsCmd() *cobra.Command {
	var (
		filter   string
		expand   []string
		asYAML   bool
		save     bool
		outPath  string
		credName string
		logLevel int
		logPath  string
	)

	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Retrieve external gateway facts from the management center",
		Long: `Retrieve external VPN gateway elements, optionally expanded with their
gateway profile and VPN site relations. The default output is the facts
mapping as JSON keyed by gateway name; --yaml emits the deterministic
YAML document used for snapshots and diffs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngineForAPI()
			if err != nil {
				return err
			}
			defer engine.Close()

			if cmd.Flags().Changed("log-level") || cmd.Flags().Changed("log-path") {
				level := engine.Config.Logging.Level
				if cmd.Flags().Changed("log-level") {
					level = logLevel
				}
				path := engine.Config.Logging.Path
				if cmd.Flags().Changed("log-path") {
					path = logPath
				}
				if err := engine.SetLogging(level, path); err != nil {
					return err
				}
			}

			runner, err := newRunner(engine, credName)
			if err != nil {
				return err
			}

			outcome, err := runner.Execute(cmd.Context(), op.RunConfig{
				OpID: "facts.external_gateway",
				Inputs: map[string]any{
					"filter":    filter,
					"relations": expand,
					"as_yaml":   asYAML,
				},
				SaveSnapshot: save,
				Operator:     operatorName(),
			})
			if err != nil {
				return err
			}
			if outcome.Result.Error != nil {
				return fmt.Errorf("retrieval failed (run %s): %w", outcome.Run.UUID[:8], outcome.Result.Error)
			}

			var document []byte
			if asYAML {
				doc, _ := outcome.Result.Outputs[sdk.OutputDocument].(string)
				document = []byte(doc)
			} else {
				document, err = json.MarshalIndent(outcome.Result.Outputs["facts"], "", "  ")
				if err != nil {
					return fmt.Errorf("encoding facts: %w", err)
				}
				document = append(document, '\n')
			}

			// The document owns stdout so it stays pipeable; the run
			// summary moves to stderr unless --out frees stdout up.
			var info io.Writer = os.Stderr
			if outPath != "" {
				if err := os.WriteFile(outPath, document, 0600); err != nil {
					return fmt.Errorf("writing output file: %w", err)
				}
				info = os.Stdout
				fmt.Fprintf(info, "Document written to %s\n", outPath)
			} else {
				os.Stdout.Write(document)
			}

			fmt.Fprintf(info, "Retrieved %d gateways (run %s)\n", outcome.Run.GatewayCount, outcome.Run.UUID[:8])
			if outcome.Snapshot != nil {
				fmt.Fprintf(info, "Snapshot saved: %s\n", outcome.Snapshot.UUID[:8])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Exact-match gateway name filter")
	cmd.Flags().StringSliceVar(&expand, "expand", nil, "Relations to inline: gateway_profile, vpn_site")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Emit the deterministic YAML document instead of the JSON mapping")
	cmd.Flags().BoolVar(&save, "save", false, "Store the retrieved document as a snapshot")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the document to a file instead of stdout")
	cmd.Flags().StringVar(&credName, "cred", "", "Named vault credential to use (default: default)")
	cmd.Flags().IntVar(&logLevel, "log-level", 0, "Log verbosity override (10 debug, 20 info, 30 warn)")
	cmd.Flags().StringVar(&logPath, "log-path", "", "Append JSON logs to this file instead of stderr")

	return cmd
}

// printJSON pretty-prints a value as indented JSON.
func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
