package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rampart-sec/rampart/internal/audit"
	"github.com/rampart-sec/rampart/internal/history"
)

// RegisterExportCommands adds the evidence export command.
func RegisterExportCommands(root *cobra.Command) {
	root.AddCommand(newExportCmd())
}

func newExportCmd() *cobra.Command {
	var (
		outputDir string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export runs, snapshots, and the audit trail to a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputDir == "" {
				return fmt.Errorf("--output is required")
			}
			if format != "yaml" && format != "json" {
				return fmt.Errorf("unsupported format %q (yaml or json)", format)
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			for _, dir := range []string{outputDir,
				filepath.Join(outputDir, "runs"),
				filepath.Join(outputDir, "snapshots"),
				filepath.Join(outputDir, "audit"),
			} {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("creating export directory: %w", err)
				}
			}

			runs, err := history.NewManager(engine.MetadataDB).List("", 0)
			if err != nil {
				return err
			}
			for i := range runs {
				data, err := encodeExport(runs[i], format)
				if err != nil {
					return err
				}
				name := filepath.Join(outputDir, "runs", runs[i].UUID[:8]+"."+format)
				if err := os.WriteFile(name, data, 0644); err != nil {
					return err
				}
			}

			store := snapshotStore(engine)
			snaps, err := store.List("")
			if err != nil {
				return err
			}
			for i := range snaps {
				meta, err := encodeExport(snaps[i], format)
				if err != nil {
					return err
				}
				base := filepath.Join(outputDir, "snapshots", snaps[i].UUID[:8])
				if err := os.WriteFile(base+".meta."+format, meta, 0644); err != nil {
					return err
				}
				content, err := store.ReadContent(&snaps[i])
				if err != nil {
					return err
				}
				if err := os.WriteFile(base+".yaml", content, 0644); err != nil {
					return err
				}
			}

			records, err := audit.List(engine.AuditDB, 0)
			if err != nil {
				return err
			}
			chainValid, _, err := audit.Verify(engine.AuditDB)
			if err != nil {
				return err
			}
			auditData, err := encodeExport(records, format)
			if err != nil {
				return err
			}
			auditFile := filepath.Join(outputDir, "audit", "audit_log."+format)
			if err := os.WriteFile(auditFile, auditData, 0644); err != nil {
				return err
			}

			manifest := map[string]any{
				"exported_at":       time.Now().UTC().Format(time.RFC3339),
				"format":            format,
				"home_dir":          engine.HomeDir,
				"server_url":        engine.Config.Server.URL,
				"runs":              len(runs),
				"snapshots":         len(snaps),
				"audit_records":     len(records),
				"audit_chain_valid": chainValid,
			}
			manifestData, err := json.MarshalIndent(manifest, "", "  ")
			if err != nil {
				return err
			}
			manifestFile := filepath.Join(outputDir, "manifest.json")
			if err := os.WriteFile(manifestFile, append(manifestData, '\n'), 0644); err != nil {
				return err
			}

			fmt.Printf("Exported %d runs, %d snapshots, %d audit records to %s\n",
				len(runs), len(snaps), len(records), outputDir)
			if !chainValid {
				fmt.Println("WARNING: audit chain verification failed; exported records may be incomplete.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outputDir, "output", "", "Directory to write the export into")
	cmd.Flags().StringVar(&format, "format", "yaml", "Metadata format: yaml or json")

	return cmd
}

// encodeExport marshals v for export. YAML output round-trips through JSON
// so field names match the json struct tags used everywhere else.
func encodeExport(v any, format string) ([]byte, error) {
	if format == "json" {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}

	jsonData, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(jsonData, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}
