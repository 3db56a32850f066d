package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rampart-sec/rampart/internal/config"
	"github.com/rampart-sec/rampart/internal/creds"
)

func testConfig() config.GlobalConfig {
	cfg := config.DefaultGlobalConfig()
	cfg.Server.URL = "https://smc.lab:8082"
	return cfg
}

func TestInitAndOpenHome(t *testing.T) {
	dir := t.TempDir()

	engine, err := Init(dir, "test-pass", testConfig())
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	if engine.HomeDir != dir {
		t.Errorf("expected home %s, got %s", dir, engine.HomeDir)
	}
	if engine.Vault == nil {
		t.Fatal("expected vault to be created")
	}
	if !IsInitialized(dir) {
		t.Error("expected home to be initialized")
	}

	engine.Vault.Put(creds.VaultKey("default"), []byte("api-key-1"))
	engine.Vault.Save()
	engine.Close()

	// Reopen
	engine2, err := Open(dir, "test-pass")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer engine2.Close()

	if engine2.Config.Server.URL != "https://smc.lab:8082" {
		t.Errorf("config not preserved: %q", engine2.Config.Server.URL)
	}
	if engine2.Vault == nil {
		t.Fatal("expected vault to unlock")
	}
	if !engine2.Vault.Has(creds.VaultKey("default")) {
		t.Error("vault entry lost across reopen")
	}
}

func TestOpenUninitializedHome(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nothing-here")
	if _, err := Open(dir, ""); err == nil {
		t.Error("expected error for uninitialized home")
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	dir := t.TempDir()

	engine, err := Init(dir, "correct-pass", testConfig())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	engine.Vault.Put(creds.VaultKey("default"), []byte("secret-data"))
	engine.Vault.Save()
	engine.Close()

	if _, err := Open(dir, "wrong-pass"); err == nil {
		t.Error("expected error with wrong passphrase")
	}
}

func TestOpenWithoutPassphraseSkipsVault(t *testing.T) {
	dir := t.TempDir()

	engine, err := Init(dir, "some-pass", testConfig())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	engine.Close()

	engine2, err := Open(dir, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer engine2.Close()

	if engine2.Vault != nil {
		t.Error("expected vault to stay locked without a passphrase")
	}
}

func TestInitWithoutPassphraseCreatesNoVault(t *testing.T) {
	dir := t.TempDir()

	engine, err := Init(dir, "", testConfig())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer engine.Close()

	if engine.Vault != nil {
		t.Error("expected no vault")
	}
	if _, err := os.Stat(VaultPath(dir)); !os.IsNotExist(err) {
		t.Error("expected no vault file on disk")
	}
}

func TestEngineClose(t *testing.T) {
	dir := t.TempDir()

	engine, err := Init(dir, "pass", testConfig())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Errorf("close error: %v", err)
	}
}

func TestSetLoggingRedirectsToFile(t *testing.T) {
	dir := t.TempDir()

	engine, err := Init(dir, "", testConfig())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer engine.Close()

	logPath := filepath.Join(dir, "run.log")
	if err := engine.SetLogging(10, logPath); err != nil {
		t.Fatalf("set logging: %v", err)
	}

	engine.Logger.Debug().Str("check", "yes").Msg("debug line")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected debug output in the log file")
	}
}

func TestStatus(t *testing.T) {
	dir := t.TempDir()

	engine, err := Init(dir, "pass", testConfig())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	defer engine.Close()

	engine.Vault.Put(creds.VaultKey("default"), []byte("k"))

	st, err := engine.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.ServerURL != "https://smc.lab:8082" {
		t.Errorf("unexpected server url: %s", st.ServerURL)
	}
	if !st.VaultPresent {
		t.Error("expected vault present")
	}
	if st.CredentialCount != 1 {
		t.Errorf("expected 1 credential, got %d", st.CredentialCount)
	}
	if st.RunCount != 0 || st.SnapshotCount != 0 {
		t.Errorf("expected empty stores, got runs=%d snapshots=%d", st.RunCount, st.SnapshotCount)
	}
	// Init itself leaves an audit record
	if st.AuditRecords != 1 {
		t.Errorf("expected 1 audit record, got %d", st.AuditRecords)
	}
	if !st.AuditChainValid {
		t.Error("expected valid audit chain")
	}
}

func TestResolveHomeDir(t *testing.T) {
	if got := ResolveHomeDir("/explicit/path"); got != "/explicit/path" {
		t.Errorf("override ignored: %s", got)
	}

	t.Setenv(EnvHomeDir, "/from/env")
	if got := ResolveHomeDir(""); got != "/from/env" {
		t.Errorf("env ignored: %s", got)
	}
}
