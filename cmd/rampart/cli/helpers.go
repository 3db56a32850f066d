package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rampart-sec/rampart/internal/core"
	"github.com/rampart-sec/rampart/internal/creds"
	"github.com/rampart-sec/rampart/internal/history"
	"github.com/rampart-sec/rampart/internal/op"
	"github.com/rampart-sec/rampart/internal/snapshot"
	sdk "github.com/rampart-sec/rampart/pkg/sdk/v1"
)

// EnvPassphrase supplies the vault passphrase for automation. When it is
// unset, commands that need the vault prompt on stderr.
const EnvPassphrase = "RAMPART_PASSPHRASE"

var homeOverride string

// RegisterGlobalFlags wires the flags every rampart command shares.
func RegisterGlobalFlags(root *cobra.Command) {
	root.PersistentFlags().StringVar(&homeOverride, "home", "", "RAMPART home directory (default: $RAMPART_HOME or ~/.rampart)")
}

// openEngine opens the home without prompting. The vault unlocks only
// when RAMPART_PASSPHRASE is set; commands that read local state need
// no more than that.
func openEngine() (*core.Engine, error) {
	return core.Open(homeOverride, os.Getenv(EnvPassphrase))
}

// openEngineForAPI opens the home ready for management center calls.
// The vault stays locked when the environment supplies the API key;
// otherwise the passphrase comes from RAMPART_PASSPHRASE or a prompt.
func openEngineForAPI() (*core.Engine, error) {
	if os.Getenv(creds.EnvAPIKey) != "" {
		return core.Open(homeOverride, "")
	}

	passphrase, err := vaultPassphrase()
	if err != nil {
		return nil, err
	}
	return core.Open(homeOverride, passphrase)
}

// openEngineWithVault opens the home with the vault unlocked, for
// credential management.
func openEngineWithVault() (*core.Engine, error) {
	home := core.ResolveHomeDir(homeOverride)
	if _, err := os.Stat(core.VaultPath(home)); err != nil {
		return nil, fmt.Errorf("no vault in %s (run 'rampart init' to create one)", home)
	}

	passphrase, err := vaultPassphrase()
	if err != nil {
		return nil, err
	}
	return core.Open(home, passphrase)
}

// vaultPassphrase returns the passphrase for the home's vault, or empty
// when no vault file exists.
func vaultPassphrase() (string, error) {
	home := core.ResolveHomeDir(homeOverride)
	if _, err := os.Stat(core.VaultPath(home)); err != nil {
		return "", nil
	}
	if pass := os.Getenv(EnvPassphrase); pass != "" {
		return pass, nil
	}
	return promptSecret("Vault passphrase: ")
}

// promptSecret reads a secret from the terminal without echo.
func promptSecret(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	fmt.Fprintln(os.Stderr)
	return string(secretBytes), nil
}

// newRunner wires the operation pipeline for one engine: registry, run
// history, audit, and snapshot store, with the management client built
// from the named credential.
func newRunner(engine *core.Engine, credName string) (*op.Runner, error) {
	client, err := engine.NewSMCClient(credName)
	if err != nil {
		return nil, err
	}

	reg := op.NewRegistry(engine.Logger)
	op.RegisterBuiltinOps(reg, client, engine.Logger)
	if err := reg.SyncToDB(engine.MetadataDB); err != nil {
		engine.Logger.Warn().Err(err).Msg("recording operation registry failed")
	}

	runner := op.NewRunner(reg, history.NewManager(engine.MetadataDB), engine.AuditLogger, engine.Logger)
	runner.SetSnapshotStore(snapshot.NewStore(engine.MetadataDB, engine.HomeDir).WithAudit(engine.AuditLogger))
	runner.SetServerInfo(sdk.ServerInfo{
		URL:        engine.Config.Server.URL,
		APIVersion: engine.Config.Server.APIVersion,
		CredName:   credName,
	})
	return runner, nil
}

// newOfflineRunner wires a runner with no management client. Dry runs
// never touch the server, so they need no credential either.
func newOfflineRunner(engine *core.Engine) *op.Runner {
	reg := op.NewRegistry(engine.Logger)
	op.RegisterBuiltinOps(reg, nil, engine.Logger)

	runner := op.NewRunner(reg, history.NewManager(engine.MetadataDB), engine.AuditLogger, engine.Logger)
	runner.SetServerInfo(sdk.ServerInfo{
		URL:        engine.Config.Server.URL,
		APIVersion: engine.Config.Server.APIVersion,
	})
	return runner
}

// operatorName attributes runs to the invoking user.
func operatorName() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}
