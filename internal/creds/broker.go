// Package creds resolves the management center API key for a run. Keys
// live encrypted in the vault under named entries; the environment can
// override the vault for one-off runs and CI.
package creds

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rampart-sec/rampart/internal/audit"
	"github.com/rampart-sec/rampart/internal/vault"
)

const (
	// EnvAPIKey overrides any vault entry when set.
	EnvAPIKey = "RAMPART_API_KEY"

	// DefaultName is the vault entry used when no name is given.
	DefaultName = "default"

	vaultKeyPrefix = "creds:"
)

// Source identifies where a resolved key came from.
type Source string

const (
	SourceEnv   Source = "environment"
	SourceVault Source = "vault"
)

// Resolved is an API key ready for client construction, along with where
// it was found. Fingerprint is safe to log; APIKey is not.
type Resolved struct {
	APIKey      string
	Source      Source
	Name        string
	Fingerprint string
}

// Info describes one stored credential without exposing it.
type Info struct {
	Name        string
	Fingerprint string
}

// Broker looks up, stores, and lists API keys.
type Broker struct {
	vault *vault.Vault
	audit *audit.Logger
}

// NewBroker creates a Broker. vault may be nil when only the environment
// override is available.
func NewBroker(v *vault.Vault) *Broker {
	return &Broker{vault: v}
}

// WithAudit attaches an audit logger so vault reads leave a trail entry.
func (b *Broker) WithAudit(a *audit.Logger) *Broker {
	b.audit = a
	return b
}

// Resolve returns the API key for the given credential name. The
// environment override wins over the vault. An empty name means the
// default entry.
func (b *Broker) Resolve(name string) (Resolved, error) {
	if key := os.Getenv(EnvAPIKey); key != "" {
		return Resolved{
			APIKey:      key,
			Source:      SourceEnv,
			Fingerprint: vault.HashSecret([]byte(key)),
		}, nil
	}

	if name == "" {
		name = DefaultName
	}
	if b.vault == nil {
		return Resolved{}, fmt.Errorf("no vault open and %s is not set", EnvAPIKey)
	}

	raw, err := b.vault.Get(VaultKey(name))
	if err != nil {
		return Resolved{}, fmt.Errorf("retrieving API key %q from vault: %w", name, err)
	}

	resolved := Resolved{
		APIKey:      string(raw),
		Source:      SourceVault,
		Name:        name,
		Fingerprint: vault.HashSecret(raw),
	}
	b.recordAccess("resolve", name, resolved.Fingerprint)
	return resolved, nil
}

// Store encrypts an API key under the given name and persists the vault.
func (b *Broker) Store(name, apiKey string) error {
	if name == "" {
		name = DefaultName
	}
	if apiKey == "" {
		return fmt.Errorf("refusing to store an empty API key")
	}
	if b.vault == nil {
		return fmt.Errorf("no vault open")
	}

	if err := b.vault.Put(VaultKey(name), []byte(apiKey)); err != nil {
		return fmt.Errorf("storing API key %q: %w", name, err)
	}
	if err := b.vault.Save(); err != nil {
		return err
	}
	b.recordAccess("store", name, vault.HashSecret([]byte(apiKey)))
	return nil
}

// Remove deletes a stored API key and persists the vault.
func (b *Broker) Remove(name string) error {
	if name == "" {
		name = DefaultName
	}
	if b.vault == nil {
		return fmt.Errorf("no vault open")
	}

	if err := b.vault.Delete(VaultKey(name)); err != nil {
		return err
	}
	if err := b.vault.Save(); err != nil {
		return err
	}
	b.recordAccess("remove", name, "")
	return nil
}

// List returns the stored credentials sorted by name.
func (b *Broker) List() []Info {
	if b.vault == nil {
		return nil
	}

	var infos []Info
	for _, key := range b.vault.Keys() {
		name, ok := strings.CutPrefix(key, vaultKeyPrefix)
		if !ok {
			continue
		}
		fp, err := b.vault.Fingerprint(key)
		if err != nil {
			fp = "unreadable"
		}
		infos = append(infos, Info{Name: name, Fingerprint: fp})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// VaultKey maps a credential name to its vault entry key.
func VaultKey(name string) string {
	return vaultKeyPrefix + name
}

func (b *Broker) recordAccess(action, name, fingerprint string) {
	if b.audit == nil {
		return
	}
	detail := map[string]string{"action": action, "name": name}
	if fingerprint != "" {
		detail["fingerprint"] = fingerprint
	}
	b.audit.Record(audit.EventVaultAccess, "creds", "", detail)
}
