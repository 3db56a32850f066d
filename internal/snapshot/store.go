// Package snapshot implements content-addressed storage for facts
// documents. Snapshots are persisted as flat YAML files under the home
// snapshots/ directory, named by their SHA-256 content hash, with
// metadata tracked in SQLite. Identical documents share one file, which
// is what makes run-to-run comparison cheap.
package snapshot

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/rampart-sec/rampart/internal/audit"
	"github.com/rampart-sec/rampart/internal/core"
)

// Store manages snapshot persistence (files on disk + metadata in SQLite).
type Store struct {
	db    *sql.DB
	dir   string
	audit *audit.Logger
}

// NewStore creates a snapshot store rooted at the given home directory.
func NewStore(db *sql.DB, homeDir string) *Store {
	return &Store{
		db:  db,
		dir: core.SnapshotsDir(homeDir),
	}
}

// WithAudit attaches an audit logger so saves and prunes leave a trail.
func (s *Store) WithAudit(a *audit.Logger) *Store {
	s.audit = a
	return s
}

// SaveInput holds parameters for recording a snapshot.
type SaveInput struct {
	RunUUID      *string
	ElementKey   string
	Filter       string
	Content      []byte
	ElementCount int
	CreatedBy    string
}

// Save stores a facts document on disk and records metadata. The file is
// named by its SHA-256 hash, so a run that produced identical facts
// shares the previous run's file.
func (s *Store) Save(input SaveInput) (*core.SnapshotRecord, error) {
	h := sha256.Sum256(input.Content)
	contentHash := hex.EncodeToString(h[:])
	storageName := contentHash + ".yaml"
	storagePath := filepath.Join(s.dir, storageName)

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, fmt.Errorf("ensuring snapshots directory: %w", err)
	}

	if _, err := os.Stat(storagePath); os.IsNotExist(err) {
		if err := os.WriteFile(storagePath, input.Content, 0600); err != nil {
			return nil, fmt.Errorf("writing snapshot file: %w", err)
		}
	}

	snapUUID := uuid.New().String()
	now := time.Now().UTC()
	createdBy := input.CreatedBy
	if createdBy == "" {
		createdBy = "local"
	}

	_, err := s.db.Exec(
		`INSERT INTO snapshots (uuid, run_uuid, element_key, filter, content_hash, storage_path,
		 byte_size, element_count, created_at, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snapUUID, input.RunUUID, input.ElementKey, input.Filter,
		contentHash, storageName, len(input.Content), input.ElementCount,
		now.Format(time.RFC3339Nano), createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting snapshot record: %w", err)
	}

	if s.audit != nil {
		s.audit.Record(audit.EventSnapshotSaved, "snapshot", deref(input.RunUUID), map[string]any{
			"uuid":          snapUUID,
			"element_key":   input.ElementKey,
			"content_hash":  contentHash,
			"element_count": input.ElementCount,
		})
	}

	return &core.SnapshotRecord{
		UUID:         snapUUID,
		RunUUID:      input.RunUUID,
		ElementKey:   input.ElementKey,
		Filter:       input.Filter,
		ContentHash:  contentHash,
		StoragePath:  storageName,
		ByteSize:     int64(len(input.Content)),
		ElementCount: input.ElementCount,
		CreatedAt:    now,
		CreatedBy:    createdBy,
	}, nil
}

// Get retrieves a snapshot record by UUID (supports prefix match).
func (s *Store) Get(snapUUID string) (*core.SnapshotRecord, error) {
	row := s.db.QueryRow(
		`SELECT uuid, run_uuid, element_key, filter, content_hash, storage_path,
		 byte_size, element_count, created_at, created_by
		 FROM snapshots WHERE uuid = ? OR uuid LIKE ?`,
		snapUUID, snapUUID+"%",
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot not found: %s", snapUUID)
	}
	return rec, err
}

// List returns snapshots, newest first, optionally narrowed to one
// element key.
func (s *Store) List(elementKey string) ([]core.SnapshotRecord, error) {
	query := `SELECT uuid, run_uuid, element_key, filter, content_hash, storage_path,
	           byte_size, element_count, created_at, created_by FROM snapshots`
	args := []any{}
	if elementKey != "" {
		query += " WHERE element_key = ?"
		args = append(args, elementKey)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var records []core.SnapshotRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Recent returns the n newest snapshots for an element key.
func (s *Store) Recent(elementKey string, n int) ([]core.SnapshotRecord, error) {
	all, err := s.List(elementKey)
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// ReadContent returns the document bytes, verifying them against the
// recorded hash.
func (s *Store) ReadContent(rec *core.SnapshotRecord) ([]byte, error) {
	path := filepath.Join(s.dir, rec.StoragePath)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}

	h := sha256.Sum256(data)
	if hex.EncodeToString(h[:]) != rec.ContentHash {
		return nil, fmt.Errorf("snapshot integrity check failed: hash mismatch for %s", rec.UUID)
	}
	return data, nil
}

// Prune keeps the newest keep snapshots per element key and removes the
// rest. Files are deleted only once no remaining record references them.
func (s *Store) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	all, err := s.List("")
	if err != nil {
		return 0, err
	}

	perKey := make(map[string]int)
	var removed []core.SnapshotRecord
	for _, rec := range all {
		perKey[rec.ElementKey]++
		if perKey[rec.ElementKey] > keep {
			removed = append(removed, rec)
		}
	}

	for _, rec := range removed {
		if _, err := s.db.Exec("DELETE FROM snapshots WHERE uuid = ?", rec.UUID); err != nil {
			return 0, fmt.Errorf("deleting snapshot record: %w", err)
		}

		var refs int
		if err := s.db.QueryRow(
			"SELECT COUNT(*) FROM snapshots WHERE content_hash = ?", rec.ContentHash,
		).Scan(&refs); err != nil {
			return 0, err
		}
		if refs == 0 {
			os.Remove(filepath.Join(s.dir, rec.StoragePath))
		}
	}

	if len(removed) > 0 && s.audit != nil {
		s.audit.Record(audit.EventSnapshotPruned, "snapshot", "", map[string]any{
			"removed": len(removed),
			"kept":    keep,
		})
	}
	return len(removed), nil
}

// Delete removes one snapshot record by UUID (prefix match supported).
// The content file is deleted only once no remaining record references it.
func (s *Store) Delete(snapUUID string) (*core.SnapshotRecord, error) {
	rec, err := s.Get(snapUUID)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.Exec("DELETE FROM snapshots WHERE uuid = ?", rec.UUID); err != nil {
		return nil, fmt.Errorf("deleting snapshot record: %w", err)
	}

	var refs int
	if err := s.db.QueryRow(
		"SELECT COUNT(*) FROM snapshots WHERE content_hash = ?", rec.ContentHash,
	).Scan(&refs); err != nil {
		return nil, err
	}
	if refs == 0 {
		os.Remove(filepath.Join(s.dir, rec.StoragePath))
	}

	if s.audit != nil {
		s.audit.Record(audit.EventSnapshotPruned, "snapshot", deref(rec.RunUUID), map[string]any{
			"uuid":        rec.UUID,
			"element_key": rec.ElementKey,
		})
	}
	return rec, nil
}

// VerifyIntegrity checks that all snapshot files match their recorded hashes.
func (s *Store) VerifyIntegrity() (valid int, invalid []string, err error) {
	records, err := s.List("")
	if err != nil {
		return 0, nil, err
	}

	for _, rec := range records {
		path := filepath.Join(s.dir, rec.StoragePath)
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			invalid = append(invalid, fmt.Sprintf("%s: file missing", rec.UUID))
			continue
		}

		h := sha256.Sum256(data)
		if hex.EncodeToString(h[:]) != rec.ContentHash {
			invalid = append(invalid, fmt.Sprintf("%s: hash mismatch", rec.UUID))
			continue
		}
		valid++
	}
	return valid, invalid, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*core.SnapshotRecord, error) {
	var rec core.SnapshotRecord
	var runUUID sql.NullString
	var createdAt string

	err := row.Scan(
		&rec.UUID, &runUUID, &rec.ElementKey, &rec.Filter,
		&rec.ContentHash, &rec.StoragePath, &rec.ByteSize, &rec.ElementCount,
		&createdAt, &rec.CreatedBy,
	)
	if err != nil {
		return nil, err
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if runUUID.Valid {
		rec.RunUUID = &runUUID.String
	}
	return &rec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
