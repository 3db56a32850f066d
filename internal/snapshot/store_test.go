package snapshot

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rampart-sec/rampart/internal/core"
	"github.com/rampart-sec/rampart/internal/db"
)

func setupStore(t *testing.T) (*Store, string) {
	t.Helper()
	home := t.TempDir()

	conn, err := sql.Open("sqlite3", filepath.Join(home, "metadata.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.Exec(db.MetadataSchema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return NewStore(conn, home), home
}

func mustSave(t *testing.T, s *Store, key, filter string, content []byte) *core.SnapshotRecord {
	t.Helper()
	rec, err := s.Save(SaveInput{
		ElementKey:   key,
		Filter:       filter,
		Content:      content,
		ElementCount: 1,
	})
	if err != nil {
		t.Fatalf("saving snapshot: %v", err)
	}
	// Nanosecond timestamps order List results; keep saves apart.
	time.Sleep(2 * time.Millisecond)
	return rec
}

func TestSaveAndGet(t *testing.T) {
	store, home := setupStore(t)

	content := []byte("external_gateway:\n- name: gw1\n")
	rec := mustSave(t, store, "external_gateway", "gw1", content)

	if rec.UUID == "" {
		t.Error("expected snapshot UUID to be set")
	}
	if rec.ByteSize != int64(len(content)) {
		t.Errorf("byte size = %d, want %d", rec.ByteSize, len(content))
	}
	if rec.CreatedBy != "local" {
		t.Errorf("created_by = %q, want local", rec.CreatedBy)
	}
	if !strings.HasSuffix(rec.StoragePath, ".yaml") {
		t.Errorf("storage path %q should end in .yaml", rec.StoragePath)
	}

	if _, err := os.Stat(filepath.Join(home, "snapshots", rec.StoragePath)); err != nil {
		t.Errorf("snapshot file missing: %v", err)
	}

	got, err := store.Get(rec.UUID)
	if err != nil {
		t.Fatalf("getting snapshot: %v", err)
	}
	if got.ContentHash != rec.ContentHash {
		t.Errorf("content hash = %q, want %q", got.ContentHash, rec.ContentHash)
	}
	if got.Filter != "gw1" {
		t.Errorf("filter = %q, want gw1", got.Filter)
	}

	byPrefix, err := store.Get(rec.UUID[:8])
	if err != nil {
		t.Fatalf("getting snapshot by prefix: %v", err)
	}
	if byPrefix.UUID != rec.UUID {
		t.Errorf("prefix lookup returned %q, want %q", byPrefix.UUID, rec.UUID)
	}
}

func TestGetMissing(t *testing.T) {
	store, _ := setupStore(t)

	if _, err := store.Get("no-such-uuid"); err == nil {
		t.Error("expected error for unknown snapshot")
	}
}

func TestSaveDeduplicatesContent(t *testing.T) {
	store, home := setupStore(t)

	content := []byte("external_gateway: []\n")
	first := mustSave(t, store, "external_gateway", "", content)
	second := mustSave(t, store, "external_gateway", "", content)

	if first.UUID == second.UUID {
		t.Error("expected distinct record UUIDs")
	}
	if first.ContentHash != second.ContentHash {
		t.Error("expected identical content hashes")
	}

	entries, err := os.ReadDir(filepath.Join(home, "snapshots"))
	if err != nil {
		t.Fatalf("reading snapshots dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 stored file, found %d", len(entries))
	}
}

func TestReadContent(t *testing.T) {
	store, home := setupStore(t)

	content := []byte("external_gateway:\n- name: gw1\n")
	rec := mustSave(t, store, "external_gateway", "", content)

	got, err := store.ReadContent(rec)
	if err != nil {
		t.Fatalf("reading content: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content = %q, want %q", got, content)
	}

	// Corrupt the file and expect the integrity check to catch it.
	path := filepath.Join(home, "snapshots", rec.StoragePath)
	if err := os.WriteFile(path, []byte("tampered"), 0600); err != nil {
		t.Fatalf("tampering with file: %v", err)
	}
	if _, err := store.ReadContent(rec); err == nil {
		t.Error("expected integrity error for tampered file")
	}
}

func TestListFiltersByElementKey(t *testing.T) {
	store, _ := setupStore(t)

	mustSave(t, store, "external_gateway", "", []byte("a\n"))
	mustSave(t, store, "gateway_profile", "", []byte("b\n"))
	mustSave(t, store, "external_gateway", "", []byte("c\n"))

	all, err := store.List("")
	if err != nil {
		t.Fatalf("listing all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(all))
	}

	gws, err := store.List("external_gateway")
	if err != nil {
		t.Fatalf("listing by key: %v", err)
	}
	if len(gws) != 2 {
		t.Fatalf("expected 2 external_gateway snapshots, got %d", len(gws))
	}
	for _, rec := range gws {
		if rec.ElementKey != "external_gateway" {
			t.Errorf("unexpected element key %q", rec.ElementKey)
		}
	}
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	store, _ := setupStore(t)

	mustSave(t, store, "external_gateway", "", []byte("first\n"))
	mustSave(t, store, "external_gateway", "", []byte("second\n"))
	third := mustSave(t, store, "external_gateway", "", []byte("third\n"))

	recent, err := store.Recent("external_gateway", 2)
	if err != nil {
		t.Fatalf("fetching recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(recent))
	}
	if recent[0].UUID != third.UUID {
		t.Errorf("newest snapshot = %q, want %q", recent[0].UUID, third.UUID)
	}
}

func TestPruneKeepsNewestPerKey(t *testing.T) {
	store, home := setupStore(t)

	old := mustSave(t, store, "external_gateway", "", []byte("old\n"))
	mid := mustSave(t, store, "external_gateway", "", []byte("mid\n"))
	newest := mustSave(t, store, "external_gateway", "", []byte("new\n"))
	other := mustSave(t, store, "vpn_site", "", []byte("site\n"))

	removed, err := store.Prune(1)
	if err != nil {
		t.Fatalf("pruning: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	left, err := store.List("")
	if err != nil {
		t.Fatalf("listing after prune: %v", err)
	}
	if len(left) != 2 {
		t.Fatalf("expected 2 snapshots after prune, got %d", len(left))
	}
	for _, rec := range left {
		if rec.UUID == old.UUID || rec.UUID == mid.UUID {
			t.Errorf("pruned snapshot %q still listed", rec.UUID)
		}
	}

	for _, rec := range []*core.SnapshotRecord{old, mid} {
		if _, err := os.Stat(filepath.Join(home, "snapshots", rec.StoragePath)); !os.IsNotExist(err) {
			t.Errorf("expected file for %q to be removed", rec.UUID)
		}
	}
	for _, rec := range []*core.SnapshotRecord{newest, other} {
		if _, err := os.Stat(filepath.Join(home, "snapshots", rec.StoragePath)); err != nil {
			t.Errorf("expected file for %q to survive: %v", rec.UUID, err)
		}
	}
}

func TestPruneKeepsSharedFiles(t *testing.T) {
	store, home := setupStore(t)

	content := []byte("external_gateway: []\n")
	mustSave(t, store, "external_gateway", "", content)
	kept := mustSave(t, store, "external_gateway", "", content)

	removed, err := store.Prune(1)
	if err != nil {
		t.Fatalf("pruning: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	// The surviving record still references the shared file.
	if _, err := os.Stat(filepath.Join(home, "snapshots", kept.StoragePath)); err != nil {
		t.Errorf("shared file should survive prune: %v", err)
	}
}

func TestDeleteRemovesRecordAndOrphanedFile(t *testing.T) {
	store, home := setupStore(t)

	lone := mustSave(t, store, "external_gateway", "", []byte("lone\n"))

	shared := []byte("shared\n")
	first := mustSave(t, store, "vpn_site", "", shared)
	second := mustSave(t, store, "vpn_site", "", shared)

	rec, err := store.Delete(lone.UUID[:8])
	if err != nil {
		t.Fatalf("deleting by prefix: %v", err)
	}
	if rec.UUID != lone.UUID {
		t.Errorf("deleted %q, want %q", rec.UUID, lone.UUID)
	}
	if _, err := os.Stat(filepath.Join(home, "snapshots", lone.StoragePath)); !os.IsNotExist(err) {
		t.Error("expected orphaned file to be removed")
	}

	// A shared file survives until its last record goes.
	if _, err := store.Delete(first.UUID); err != nil {
		t.Fatalf("deleting first shared record: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "snapshots", second.StoragePath)); err != nil {
		t.Errorf("shared file should survive: %v", err)
	}
	if _, err := store.Delete(second.UUID); err != nil {
		t.Fatalf("deleting second shared record: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "snapshots", second.StoragePath)); !os.IsNotExist(err) {
		t.Error("expected shared file to be removed with its last record")
	}

	if _, err := store.Delete(lone.UUID); err == nil {
		t.Error("expected error deleting a missing snapshot")
	}
}

func TestVerifyIntegrity(t *testing.T) {
	store, home := setupStore(t)

	mustSave(t, store, "external_gateway", "", []byte("good\n"))
	bad := mustSave(t, store, "external_gateway", "", []byte("soon bad\n"))

	path := filepath.Join(home, "snapshots", bad.StoragePath)
	if err := os.WriteFile(path, []byte("tampered"), 0600); err != nil {
		t.Fatalf("tampering with file: %v", err)
	}

	valid, invalid, err := store.VerifyIntegrity()
	if err != nil {
		t.Fatalf("verifying integrity: %v", err)
	}
	if valid != 1 {
		t.Errorf("valid = %d, want 1", valid)
	}
	if len(invalid) != 1 {
		t.Fatalf("invalid = %d entries, want 1", len(invalid))
	}
	if !strings.Contains(invalid[0], bad.UUID) {
		t.Errorf("invalid entry %q should reference %q", invalid[0], bad.UUID)
	}
}
