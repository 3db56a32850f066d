package history

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rampart-sec/rampart/internal/core"
	"github.com/rampart-sec/rampart/internal/db"
)

func setupManager(t *testing.T) *Manager {
	t.Helper()

	conn, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "metadata.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.Exec(db.MetadataSchema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return NewManager(conn)
}

func TestBeginAndGet(t *testing.T) {
	mgr := setupManager(t)

	inputs := map[string]any{"filter": "myextgw", "as_yaml": true}
	rec, err := mgr.Begin("facts.external_gateway", "1.0.0", inputs, "")
	if err != nil {
		t.Fatalf("beginning run: %v", err)
	}
	if rec.Status != core.RunRunning {
		t.Errorf("status = %q, want running", rec.Status)
	}
	if rec.CreatedBy != "local" {
		t.Errorf("created_by = %q, want local", rec.CreatedBy)
	}

	got, err := mgr.Get(rec.UUID)
	if err != nil {
		t.Fatalf("getting run: %v", err)
	}
	if got.OpID != "facts.external_gateway" {
		t.Errorf("op_id = %q", got.OpID)
	}
	if got.Inputs["filter"] != "myextgw" {
		t.Errorf("inputs = %v", got.Inputs)
	}
	if got.CompletedAt != nil {
		t.Error("running run should have no completion time")
	}

	byPrefix, err := mgr.Get(rec.UUID[:8])
	if err != nil {
		t.Fatalf("getting run by prefix: %v", err)
	}
	if byPrefix.UUID != rec.UUID {
		t.Errorf("prefix lookup returned %q, want %q", byPrefix.UUID, rec.UUID)
	}
}

func TestFinishRecordsResult(t *testing.T) {
	mgr := setupManager(t)

	rec, err := mgr.Begin("facts.external_gateway", "1.0.0", nil, "")
	if err != nil {
		t.Fatalf("beginning run: %v", err)
	}
	if err := mgr.Finish(rec.UUID, 3, "snap-uuid-1"); err != nil {
		t.Fatalf("finishing run: %v", err)
	}

	got, err := mgr.Get(rec.UUID)
	if err != nil {
		t.Fatalf("getting run: %v", err)
	}
	if got.Status != core.RunSuccess {
		t.Errorf("status = %q, want success", got.Status)
	}
	if got.GatewayCount != 3 {
		t.Errorf("gateway_count = %d, want 3", got.GatewayCount)
	}
	if got.SnapshotUUID != "snap-uuid-1" {
		t.Errorf("snapshot_uuid = %q", got.SnapshotUUID)
	}
	if got.CompletedAt == nil {
		t.Error("finished run should have a completion time")
	}
	if got.ErrorDetail != nil {
		t.Errorf("error_detail = %v, want nil", *got.ErrorDetail)
	}
}

func TestFailRecordsCause(t *testing.T) {
	mgr := setupManager(t)

	rec, err := mgr.Begin("facts.external_gateway", "1.0.0", nil, "")
	if err != nil {
		t.Fatalf("beginning run: %v", err)
	}
	if err := mgr.Fail(rec.UUID, errors.New("smc.fetch: request failed [connection]")); err != nil {
		t.Fatalf("failing run: %v", err)
	}

	got, err := mgr.Get(rec.UUID)
	if err != nil {
		t.Fatalf("getting run: %v", err)
	}
	if got.Status != core.RunError {
		t.Errorf("status = %q, want error", got.Status)
	}
	if got.ErrorDetail == nil || *got.ErrorDetail == "" {
		t.Error("expected error detail to be recorded")
	}
}

func TestFinishDryRun(t *testing.T) {
	mgr := setupManager(t)

	rec, err := mgr.Begin("facts.external_gateway", "1.0.0", nil, "")
	if err != nil {
		t.Fatalf("beginning run: %v", err)
	}
	if err := mgr.FinishDryRun(rec.UUID); err != nil {
		t.Fatalf("finishing dry run: %v", err)
	}

	got, err := mgr.Get(rec.UUID)
	if err != nil {
		t.Fatalf("getting run: %v", err)
	}
	if got.Status != core.RunDryRun {
		t.Errorf("status = %q, want dry_run", got.Status)
	}
}

func TestCancel(t *testing.T) {
	mgr := setupManager(t)

	rec, err := mgr.Begin("facts.external_gateway", "1.0.0", nil, "")
	if err != nil {
		t.Fatalf("beginning run: %v", err)
	}
	if err := mgr.Cancel(rec.UUID); err != nil {
		t.Fatalf("cancelling run: %v", err)
	}

	got, err := mgr.Get(rec.UUID)
	if err != nil {
		t.Fatalf("getting run: %v", err)
	}
	if got.Status != core.RunCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
}

func TestCompleteUnknownRun(t *testing.T) {
	mgr := setupManager(t)

	if err := mgr.Finish("no-such-run", 0, ""); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestPruneKeepsNewestAndReferenced(t *testing.T) {
	mgr := setupManager(t)

	oldest, _ := mgr.Begin("facts.external_gateway", "1.0.0", nil, "")
	mgr.Finish(oldest.UUID, 1, "")
	time.Sleep(2 * time.Millisecond)
	second, _ := mgr.Begin("facts.external_gateway", "1.0.0", nil, "")
	mgr.Finish(second.UUID, 1, "")
	time.Sleep(2 * time.Millisecond)
	third, _ := mgr.Begin("facts.vpn_site", "1.0.0", nil, "")
	mgr.Finish(third.UUID, 1, "")
	time.Sleep(2 * time.Millisecond)
	newest, _ := mgr.Begin("facts.external_gateway", "1.0.0", nil, "")
	mgr.Finish(newest.UUID, 2, "")

	// A snapshot pins the oldest run.
	_, err := mgr.db.Exec(
		`INSERT INTO snapshots (uuid, run_uuid, element_key, content_hash, storage_path, created_at)
		 VALUES ('snap-1', ?, 'external_gateway', 'hash', 'snapshots/hash.yaml', ?)`,
		oldest.UUID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		t.Fatalf("inserting snapshot: %v", err)
	}

	removed, err := mgr.Prune(2)
	if err != nil {
		t.Fatalf("pruning runs: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := mgr.Get(second.UUID); err == nil {
		t.Error("expected unreferenced old run to be pruned")
	}
	for _, keep := range []string{oldest.UUID, third.UUID, newest.UUID} {
		if _, err := mgr.Get(keep); err != nil {
			t.Errorf("run %s should survive prune: %v", keep[:8], err)
		}
	}
}

func TestPruneSkipsRunningRuns(t *testing.T) {
	mgr := setupManager(t)

	running, _ := mgr.Begin("facts.external_gateway", "1.0.0", nil, "")
	time.Sleep(2 * time.Millisecond)
	done, _ := mgr.Begin("facts.external_gateway", "1.0.0", nil, "")
	mgr.Finish(done.UUID, 1, "")

	removed, err := mgr.Prune(0)
	if err != nil {
		t.Fatalf("pruning runs: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := mgr.Get(running.UUID); err != nil {
		t.Errorf("running run should survive prune: %v", err)
	}
}

func TestListNewestFirstWithFilter(t *testing.T) {
	mgr := setupManager(t)

	mgr.Begin("facts.external_gateway", "1.0.0", nil, "")
	time.Sleep(2 * time.Millisecond)
	mgr.Begin("facts.vpn_site", "1.0.0", nil, "")
	time.Sleep(2 * time.Millisecond)
	third, _ := mgr.Begin("facts.external_gateway", "1.0.0", nil, "")

	all, err := mgr.List("", 0)
	if err != nil {
		t.Fatalf("listing runs: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
	if all[0].UUID != third.UUID {
		t.Errorf("newest run = %q, want %q", all[0].UUID, third.UUID)
	}

	gwRuns, err := mgr.List("facts.external_gateway", 0)
	if err != nil {
		t.Fatalf("listing by op: %v", err)
	}
	if len(gwRuns) != 2 {
		t.Fatalf("expected 2 external_gateway runs, got %d", len(gwRuns))
	}

	limited, err := mgr.List("", 1)
	if err != nil {
		t.Fatalf("listing limited: %v", err)
	}
	if len(limited) != 1 || limited[0].UUID != third.UUID {
		t.Errorf("limited list = %v", limited)
	}
}
