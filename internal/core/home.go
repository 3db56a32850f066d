// home.go manages the RAMPART home directory: a single per-operator
// directory holding config, databases, the vault, and snapshots.
package core

import (
	"os"
	"path/filepath"

	"github.com/rampart-sec/rampart/internal/audit"
	"github.com/rampart-sec/rampart/internal/config"
	"github.com/rampart-sec/rampart/internal/db"
	"github.com/rampart-sec/rampart/internal/vault"
)

// EnvHomeDir overrides the default home directory location.
const EnvHomeDir = "RAMPART_HOME"

// ResolveHomeDir picks the home directory: explicit override, then the
// environment, then ~/.rampart.
func ResolveHomeDir(override string) string {
	if override != "" {
		return override
	}
	if env := os.Getenv(EnvHomeDir); env != "" {
		return env
	}
	return config.ConfigDir()
}

// IsInitialized reports whether a home directory has been set up.
func IsInitialized(homeDir string) bool {
	_, err := os.Stat(filepath.Join(homeDir, config.ConfigFileName))
	return err == nil
}

// SnapshotsDir returns the snapshot storage directory under a home.
func SnapshotsDir(homeDir string) string {
	return filepath.Join(homeDir, "snapshots")
}

// VaultPath returns the vault file location under a home.
func VaultPath(homeDir string) string {
	return filepath.Join(homeDir, vault.VaultFileName)
}

// Status summarizes the state of a home directory for display.
type Status struct {
	HomeDir         string
	ServerURL       string
	APIVersion      string
	VaultPresent    bool
	CredentialCount int
	RunCount        int
	SnapshotCount   int
	AuditRecords    int
	AuditChainValid bool
}

// Status gathers counts and integrity state across the engine's stores.
func (e *Engine) Status() (*Status, error) {
	st := &Status{
		HomeDir:    e.HomeDir,
		ServerURL:  e.Config.Server.URL,
		APIVersion: e.Config.Server.APIVersion,
	}

	if _, err := os.Stat(VaultPath(e.HomeDir)); err == nil {
		st.VaultPresent = true
	}
	if e.Vault != nil {
		st.CredentialCount = len(e.Vault.Keys())
	}

	if err := e.MetadataDB.QueryRow("SELECT COUNT(*) FROM runs").Scan(&st.RunCount); err != nil {
		return nil, err
	}
	if err := e.MetadataDB.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&st.SnapshotCount); err != nil {
		return nil, err
	}

	valid, records, err := audit.Verify(e.AuditDB)
	if err == nil {
		st.AuditChainValid = valid
	}
	st.AuditRecords = records
	return st, nil
}

// EnsureHome creates the home directory tree.
func EnsureHome(homeDir string) error {
	return db.EnsureHomeDir(homeDir)
}
