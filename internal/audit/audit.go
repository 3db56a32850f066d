// Package audit provides the append-only audit logging system for RAMPART.
// Audit records form a hash chain for tamper detection.
package audit

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EventType categorizes audit log entries.
type EventType string

const (
	EventAPIFetch        EventType = "api_fetch"
	EventOpStarted       EventType = "op_started"
	EventOpFinished      EventType = "op_finished"
	EventOpFailed        EventType = "op_failed"
	EventSnapshotSaved   EventType = "snapshot_saved"
	EventSnapshotPruned  EventType = "snapshot_pruned"
	EventVaultAccess     EventType = "vault_access"
	EventHomeInitialized EventType = "home_initialized"
)

// Logger writes tamper-evident audit records to the audit database.
type Logger struct {
	db       *sql.DB
	mu       sync.Mutex
	lastHash string
}

// NewLogger creates an audit logger over an opened audit database.
func NewLogger(db *sql.DB) (*Logger, error) {
	al := &Logger{db: db}

	// Recover last hash for chain continuity
	var lastHash sql.NullString
	err := db.QueryRow(
		"SELECT record_hash FROM audit_log ORDER BY id DESC LIMIT 1",
	).Scan(&lastHash)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("recovering audit chain: %w", err)
	}
	if lastHash.Valid {
		al.lastHash = lastHash.String
	}

	return al, nil
}

// Record writes an audit event. The record is appended immutably with a
// hash chain link to its predecessor. runUUID may be empty for events
// outside any operation run.
func (al *Logger) Record(event EventType, source, runUUID string, detail any) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	detailJSON, err := json.Marshal(detail)
	if err != nil {
		detailJSON = []byte(fmt.Sprintf(`{"error":"failed to marshal detail: %s"}`, err))
	}

	now := time.Now().UTC()
	recordHash := al.computeHash(now, event, source, string(detailJSON))

	_, err = al.db.Exec(
		`INSERT INTO audit_log (timestamp, run_uuid, source, event_type, detail, record_hash)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		now.Format(time.RFC3339Nano),
		runUUID,
		source,
		string(event),
		string(detailJSON),
		recordHash,
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}

	al.lastHash = recordHash
	return nil
}

// computeHash creates the hash chain link: SHA-256(previousHash + timestamp + eventType + source + detail)
func (al *Logger) computeHash(ts time.Time, event EventType, source, detail string) string {
	data := al.lastHash + ts.Format(time.RFC3339Nano) + string(event) + source + detail
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// Record is one stored audit entry.
type Record struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	RunUUID   string `json:"run_uuid,omitempty"`
	Source    string `json:"source"`
	Event     string `json:"event"`
	Detail    string `json:"detail"`
	Hash      string `json:"record_hash"`
}

// List returns audit records in chain order. A positive limit returns
// only the newest limit records, still oldest first.
func List(db *sql.DB, limit int) ([]Record, error) {
	query := `SELECT id, timestamp, run_uuid, source, event_type, detail, record_hash
	          FROM audit_log ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var runUUID sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &runUUID, &rec.Source, &rec.Event, &rec.Detail, &rec.Hash); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		rec.RunUUID = runUUID.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// Verify checks the integrity of the entire audit chain.
func Verify(db *sql.DB) (bool, int, error) {
	rows, err := db.Query(
		"SELECT timestamp, event_type, source, detail, record_hash FROM audit_log ORDER BY id ASC",
	)
	if err != nil {
		return false, 0, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var previousHash string
	count := 0

	for rows.Next() {
		var ts, event, source, detail, recordHash string
		if err := rows.Scan(&ts, &event, &source, &detail, &recordHash); err != nil {
			return false, count, fmt.Errorf("scanning audit row: %w", err)
		}

		data := previousHash + ts + event + source + detail
		h := sha256.Sum256([]byte(data))
		expected := hex.EncodeToString(h[:])

		if expected != recordHash {
			return false, count, fmt.Errorf("audit chain broken at record %d", count+1)
		}

		previousHash = recordHash
		count++
	}

	return true, count, nil
}
