package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rampart-sec/rampart/internal/smc"
)

// RegisterElementCommands adds raw element fetch commands.
func RegisterElementCommands(root *cobra.Command) {
	elemCmd := &cobra.Command{
		Use:   "elements",
		Short: "Fetch raw elements from the management center",
	}

	elemCmd.AddCommand(newElementsFetchCmd())

	root.AddCommand(elemCmd)
}

func newElementsFetchCmd() *cobra.Command {
	var (
		typeName string
		filter   string
		credName string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch elements of one type, optionally filtered by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			if typeName == "" {
				return fmt.Errorf("--type is required (external_gateway, gateway_profile, vpn_site)")
			}
			objType, err := smc.ParseObjectType(typeName)
			if err != nil {
				return err
			}

			engine, err := openEngineForAPI()
			if err != nil {
				return err
			}
			defer engine.Close()

			client, err := engine.NewSMCClient(credName)
			if err != nil {
				return err
			}

			elements, err := client.Fetch(cmd.Context(), objType, filter)
			if err != nil {
				return err
			}

			if asJSON {
				printJSON(elements)
				return nil
			}
			if len(elements) == 0 {
				fmt.Printf("No %s elements found.\n", objType)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tHREF")
			for _, el := range elements {
				fmt.Fprintf(w, "%s\t%s\t%s\n", el.Name, el.Type, truncate(el.Href, 60))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&typeName, "type", "", "Element type (required)")
	cmd.Flags().StringVar(&filter, "filter", "", "Exact-match element name filter")
	cmd.Flags().StringVar(&credName, "cred", "", "Named vault credential to use")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output full element bodies as JSON")

	return cmd
}
