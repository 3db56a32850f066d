package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rampart-sec/rampart/internal/config"
	"github.com/rampart-sec/rampart/internal/core"
	"github.com/rampart-sec/rampart/internal/db"
)

// RegisterInitCommands adds the home initialization command.
func RegisterInitCommands(root *cobra.Command) {
	root.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var (
		serverURL  string
		apiVersion string
		caBundle   string
		skipVerify bool
		timeout    int
		rate       int
		cacheTTL   int
		noVault    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the RAMPART home directory",
		Long: `Create the RAMPART home directory with its config file, metadata and
audit databases, and an encrypted credential vault. The vault passphrase
is prompted for unless RAMPART_PASSPHRASE is set or --no-vault is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			home := core.ResolveHomeDir(homeOverride)
			if core.IsInitialized(home) {
				return fmt.Errorf("home directory %s is already initialized", home)
			}

			passphrase := ""
			if !noVault {
				passphrase = os.Getenv(EnvPassphrase)
				if passphrase == "" {
					var err error
					passphrase, err = promptSecret("Vault passphrase: ")
					if err != nil {
						return err
					}
					confirm, err := promptSecret("Confirm passphrase: ")
					if err != nil {
						return err
					}
					if passphrase != confirm {
						return fmt.Errorf("passphrases do not match")
					}
				}
				if len(passphrase) < 8 {
					return fmt.Errorf("passphrase must be at least 8 characters")
				}
			}

			cfg := config.DefaultGlobalConfig()
			cfg.Server.URL = serverURL
			cfg.Server.APIVersion = apiVersion
			cfg.Server.CABundle = caBundle
			cfg.Server.InsecureSkipVerify = skipVerify
			cfg.Server.TimeoutSeconds = timeout
			cfg.RatePerSecond = rate
			cfg.CacheTTLSeconds = cacheTTL

			engine, err := core.Init(home, passphrase, cfg)
			if err != nil {
				return fmt.Errorf("initializing home: %w", err)
			}
			defer engine.Close()

			fmt.Printf("RAMPART home initialized.\n")
			fmt.Printf("  Path:     %s\n", home)
			fmt.Printf("  Config:   %s\n", filepath.Join(home, config.ConfigFileName))
			fmt.Printf("  Metadata: %s\n", filepath.Join(home, db.MetadataDBFile))
			fmt.Printf("  Audit:    %s\n", filepath.Join(home, db.AuditDBFile))
			if noVault {
				fmt.Printf("  Vault:    skipped (--no-vault)\n")
			} else {
				fmt.Printf("  Vault:    %s\n", core.VaultPath(home))
			}

			if serverURL == "" {
				fmt.Printf("\nNo management center URL configured yet. Set server.url in %s\n", filepath.Join(home, config.ConfigFileName))
			}
			if !noVault {
				fmt.Println("Store an API key with: rampart creds set-key")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Management center URL (e.g. https://smc.example.net:8082)")
	cmd.Flags().StringVar(&apiVersion, "api-version", config.DefaultAPIVersion, "Management center REST API version")
	cmd.Flags().StringVar(&caBundle, "ca-bundle", "", "PEM file with the management center's CA certificate")
	cmd.Flags().BoolVar(&skipVerify, "insecure-skip-verify", false, "Skip TLS certificate verification (lab only)")
	cmd.Flags().IntVar(&timeout, "timeout", config.DefaultTimeoutSeconds, "Request timeout in seconds")
	cmd.Flags().IntVar(&rate, "rate", config.DefaultRatePerSecond, "Request rate limit per object type, per second")
	cmd.Flags().IntVar(&cacheTTL, "cache-ttl", config.DefaultCacheTTL, "Response cache TTL in seconds (0 disables)")
	cmd.Flags().BoolVar(&noVault, "no-vault", false, "Skip vault creation (API key must come from RAMPART_API_KEY)")

	return cmd
}
