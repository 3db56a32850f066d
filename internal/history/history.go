// Package history records operation runs in the metadata database. Each
// run captures the operation identity, its inputs, and how it ended, so
// past retrievals can be inspected and tied back to their snapshots.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rampart-sec/rampart/internal/core"
)

// Manager handles run lifecycle persistence: begin, finish, fail, lookup.
type Manager struct {
	db *sql.DB
}

// NewManager creates a run history manager.
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// Begin inserts a new run in running state and returns its record.
func (m *Manager) Begin(opID, opVersion string, inputs map[string]any, createdBy string) (*core.RunRecord, error) {
	if createdBy == "" {
		createdBy = "local"
	}

	rec := &core.RunRecord{
		UUID:      uuid.New().String(),
		OpID:      opID,
		OpVersion: opVersion,
		Inputs:    inputs,
		Status:    core.RunRunning,
		StartedAt: time.Now().UTC(),
		CreatedBy: createdBy,
	}

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("marshaling run inputs: %w", err)
	}

	_, err = m.db.Exec(
		`INSERT INTO runs (uuid, op_id, op_version, inputs, status, started_at, gateway_count, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		rec.UUID, opID, opVersion, string(inputsJSON), string(rec.Status),
		rec.StartedAt.Format(time.RFC3339Nano), createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting run record: %w", err)
	}
	return rec, nil
}

// Finish marks a run successful and records its result counts.
func (m *Manager) Finish(runUUID string, gatewayCount int, snapshotUUID string) error {
	return m.complete(runUUID, core.RunSuccess, gatewayCount, snapshotUUID, nil)
}

// FinishDryRun marks a run as a completed dry run.
func (m *Manager) FinishDryRun(runUUID string) error {
	return m.complete(runUUID, core.RunDryRun, 0, "", nil)
}

// Fail marks a run failed and records the cause.
func (m *Manager) Fail(runUUID string, cause error) error {
	detail := cause.Error()
	return m.complete(runUUID, core.RunError, 0, "", &detail)
}

// Cancel marks a run cancelled.
func (m *Manager) Cancel(runUUID string) error {
	return m.complete(runUUID, core.RunCancelled, 0, "", nil)
}

func (m *Manager) complete(runUUID string, status core.RunStatus, gatewayCount int, snapshotUUID string, detail *string) error {
	now := time.Now().UTC()
	res, err := m.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, gateway_count = ?, snapshot_uuid = ?, error_detail = ?
		 WHERE uuid = ?`,
		string(status), now.Format(time.RFC3339Nano), gatewayCount,
		nullable(snapshotUUID), detail, runUUID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runUUID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", runUUID)
	}
	return nil
}

// Get retrieves a run by UUID (supports prefix match).
func (m *Manager) Get(runUUID string) (*core.RunRecord, error) {
	rows, err := m.db.Query(
		`SELECT uuid, op_id, op_version, inputs, status, started_at, completed_at,
		        gateway_count, snapshot_uuid, error_detail, created_by
		 FROM runs WHERE uuid = ? OR uuid LIKE ? LIMIT 1`,
		runUUID, runUUID+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run not found: %s", runUUID)
	}
	return &runs[0], nil
}

// List returns runs newest first, optionally narrowed to one operation.
// limit <= 0 returns all.
func (m *Manager) List(opID string, limit int) ([]core.RunRecord, error) {
	query := `SELECT uuid, op_id, op_version, inputs, status, started_at, completed_at,
	           gateway_count, snapshot_uuid, error_detail, created_by FROM runs`
	args := []any{}
	if opID != "" {
		query += " WHERE op_id = ?"
		args = append(args, opID)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// Prune deletes old runs beyond the newest keep. Runs still referenced
// by a snapshot and runs currently in running state are never deleted.
// Returns the number of runs removed.
func (m *Manager) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := m.db.Exec(
		`DELETE FROM runs WHERE uuid NOT IN (
		     SELECT uuid FROM runs ORDER BY started_at DESC LIMIT ?
		 )
		 AND uuid NOT IN (
		     SELECT run_uuid FROM snapshots WHERE run_uuid IS NOT NULL
		 )
		 AND status != ?`,
		keep, string(core.RunRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanRuns(rows *sql.Rows) ([]core.RunRecord, error) {
	var runs []core.RunRecord
	for rows.Next() {
		var r core.RunRecord
		var inputsJSON, startedAt string
		var completedAt, snapshotUUID, errorDetail sql.NullString

		err := rows.Scan(
			&r.UUID, &r.OpID, &r.OpVersion, &inputsJSON, &r.Status,
			&startedAt, &completedAt, &r.GatewayCount, &snapshotUUID,
			&errorDetail, &r.CreatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
			r.CompletedAt = &t
		}
		if snapshotUUID.Valid {
			r.SnapshotUUID = snapshotUUID.String
		}
		if errorDetail.Valid {
			detail := errorDetail.String
			r.ErrorDetail = &detail
		}
		json.Unmarshal([]byte(inputsJSON), &r.Inputs)

		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
