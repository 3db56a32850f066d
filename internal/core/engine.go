// engine.go provides the central Engine that wires together all RAMPART subsystems.
package core

import (
	"crypto/tls"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/rampart-sec/rampart/internal/audit"
	"github.com/rampart-sec/rampart/internal/config"
	"github.com/rampart-sec/rampart/internal/creds"
	"github.com/rampart-sec/rampart/internal/db"
	"github.com/rampart-sec/rampart/internal/logging"
	"github.com/rampart-sec/rampart/internal/pki"
	"github.com/rampart-sec/rampart/internal/smc"
	"github.com/rampart-sec/rampart/internal/vault"
)

// Engine is the central coordinator for all RAMPART subsystems. Vault is
// nil when no vault exists or no passphrase was supplied; credential
// resolution then falls back to the environment.
type Engine struct {
	HomeDir     string
	Config      config.GlobalConfig
	MetadataDB  *sql.DB
	AuditDB     *sql.DB
	Vault       *vault.Vault
	AuditLogger *audit.Logger
	Logger      zerolog.Logger

	logCloser io.Closer
}

// Open opens an initialized home directory. The passphrase unlocks the
// vault when one exists; pass empty to run without it.
func Open(homeDir, passphrase string) (*Engine, error) {
	homeDir = ResolveHomeDir(homeDir)
	if !IsInitialized(homeDir) {
		return nil, fmt.Errorf("home directory %s is not initialized (run 'rampart init')", homeDir)
	}

	cfg, err := config.LoadGlobalConfigFrom(filepath.Join(homeDir, config.ConfigFileName))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.HomeDir = homeDir

	logger, logCloser, err := logging.Open(cfg.Logging.Level, cfg.Logging.Path)
	if err != nil {
		return nil, fmt.Errorf("opening log destination: %w", err)
	}

	metaDB, err := db.OpenMetadataDB(homeDir)
	if err != nil {
		closeQuietly(logCloser)
		return nil, fmt.Errorf("opening metadata database: %w", err)
	}

	auditDB, err := db.OpenAuditDB(homeDir)
	if err != nil {
		metaDB.Close()
		closeQuietly(logCloser)
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	var v *vault.Vault
	vaultPath := VaultPath(homeDir)
	if _, statErr := os.Stat(vaultPath); statErr == nil && passphrase != "" {
		v, err = vault.Open(vaultPath, passphrase)
		if err != nil {
			metaDB.Close()
			auditDB.Close()
			closeQuietly(logCloser)
			return nil, fmt.Errorf("opening vault: %w", err)
		}
	}

	al, err := audit.NewLogger(auditDB)
	if err != nil {
		if v != nil {
			v.Close()
		}
		metaDB.Close()
		auditDB.Close()
		closeQuietly(logCloser)
		return nil, fmt.Errorf("creating audit logger: %w", err)
	}

	return &Engine{
		HomeDir:     homeDir,
		Config:      cfg,
		MetadataDB:  metaDB,
		AuditDB:     auditDB,
		Vault:       v,
		AuditLogger: al,
		Logger:      logger,
		logCloser:   logCloser,
	}, nil
}

// Init creates a new home directory with config, databases, and, when a
// passphrase is given, an encrypted vault.
func Init(homeDir, passphrase string, cfg config.GlobalConfig) (*Engine, error) {
	homeDir = ResolveHomeDir(homeDir)
	if err := EnsureHome(homeDir); err != nil {
		return nil, err
	}

	cfg.HomeDir = homeDir
	if err := config.SaveGlobalConfig(cfg); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	logger, logCloser, err := logging.Open(cfg.Logging.Level, cfg.Logging.Path)
	if err != nil {
		return nil, fmt.Errorf("opening log destination: %w", err)
	}

	metaDB, err := db.OpenMetadataDB(homeDir)
	if err != nil {
		closeQuietly(logCloser)
		return nil, fmt.Errorf("creating metadata database: %w", err)
	}

	auditDB, err := db.OpenAuditDB(homeDir)
	if err != nil {
		metaDB.Close()
		closeQuietly(logCloser)
		return nil, fmt.Errorf("creating audit database: %w", err)
	}

	var v *vault.Vault
	if passphrase != "" {
		v, err = vault.Create(VaultPath(homeDir), passphrase)
		if err != nil {
			metaDB.Close()
			auditDB.Close()
			closeQuietly(logCloser)
			return nil, fmt.Errorf("creating vault: %w", err)
		}
	}

	al, err := audit.NewLogger(auditDB)
	if err != nil {
		if v != nil {
			v.Close()
		}
		metaDB.Close()
		auditDB.Close()
		closeQuietly(logCloser)
		return nil, fmt.Errorf("creating audit logger: %w", err)
	}

	al.Record(audit.EventHomeInitialized, "core", "", map[string]string{
		"home_dir":   homeDir,
		"server_url": cfg.Server.URL,
	})

	return &Engine{
		HomeDir:     homeDir,
		Config:      cfg,
		MetadataDB:  metaDB,
		AuditDB:     auditDB,
		Vault:       v,
		AuditLogger: al,
		Logger:      logger,
		logCloser:   logCloser,
	}, nil
}

// SetLogging replaces the engine logger, overriding the configured
// verbosity and destination for the rest of this process.
func (e *Engine) SetLogging(verbosity int, path string) error {
	logger, logCloser, err := logging.Open(verbosity, path)
	if err != nil {
		return fmt.Errorf("opening log destination: %w", err)
	}
	closeQuietly(e.logCloser)
	e.Logger = logger
	e.logCloser = logCloser
	return nil
}

// CredsBroker returns a broker over the engine's vault with audit wired in.
func (e *Engine) CredsBroker() *creds.Broker {
	return creds.NewBroker(e.Vault).WithAudit(e.AuditLogger)
}

// NewSMCClient builds a management center client from the engine's config
// and the named credential. An empty name means the default credential.
func (e *Engine) NewSMCClient(credName string) (*smc.Client, error) {
	resolved, err := e.CredsBroker().Resolve(credName)
	if err != nil {
		return nil, fmt.Errorf("resolving credentials: %w", err)
	}

	var tlsCfg *tls.Config
	if e.Config.Server.CABundle != "" || e.Config.Server.InsecureSkipVerify {
		tlsCfg, err = pki.ManagementTLSConfig(e.Config.Server.CABundle, e.Config.Server.InsecureSkipVerify)
		if err != nil {
			return nil, fmt.Errorf("building TLS config: %w", err)
		}
	}

	client, err := smc.NewClient(smc.Options{
		BaseURL:       e.Config.Server.URL,
		APIVersion:    e.Config.Server.APIVersion,
		APIKey:        resolved.APIKey,
		Timeout:       time.Duration(e.Config.Server.TimeoutSeconds) * time.Second,
		TLS:           tlsCfg,
		RatePerSecond: e.Config.RatePerSecond,
		CacheTTL:      time.Duration(e.Config.CacheTTLSeconds) * time.Second,
	}, e.Logger)
	if err != nil {
		return nil, err
	}
	return client.WithAudit(e.AuditLogger), nil
}

// Close cleanly shuts down all engine resources.
func (e *Engine) Close() error {
	var firstErr error
	if e.Vault != nil {
		if err := e.Vault.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.MetadataDB != nil {
		if err := e.MetadataDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.AuditDB != nil {
		if err := e.AuditDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closeQuietly(e.logCloser)
	return firstErr
}

func closeQuietly(c io.Closer) {
	if c != nil {
		c.Close()
	}
}
