// Package core defines the foundational types for RAMPART and the engine
// that wires the subsystems together. Every retrieval is an operation run
// against one management center, recorded in the metadata database and
// optionally snapshotted for run-to-run comparison.
package core

import (
	"time"
)

// RiskClass categorizes operation risk. The built-in facts operations
// never write to the management center.
type RiskClass string

const (
	RiskReadOnly    RiskClass = "read_only"
	RiskWrite       RiskClass = "write"
	RiskDestructive RiskClass = "destructive"
)

// RunStatus tracks an operation run's lifecycle.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSuccess   RunStatus = "success"
	RunError     RunStatus = "error"
	RunCancelled RunStatus = "cancelled"
	RunDryRun    RunStatus = "dry_run"
)

// RunRecord records a single execution of an operation.
type RunRecord struct {
	UUID         string         `json:"uuid"`
	OpID         string         `json:"op_id"`
	OpVersion    string         `json:"op_version"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Status       RunStatus      `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	GatewayCount int            `json:"gateway_count"`
	SnapshotUUID string         `json:"snapshot_uuid,omitempty"`
	ErrorDetail  *string        `json:"error_detail,omitempty"`
	CreatedBy    string         `json:"created_by"`
}

// SnapshotRecord describes one stored facts document.
type SnapshotRecord struct {
	UUID         string    `json:"uuid"`
	RunUUID      *string   `json:"run_uuid,omitempty"`
	ElementKey   string    `json:"element_key"`
	Filter       string    `json:"filter,omitempty"`
	ContentHash  string    `json:"content_hash"`  // SHA-256
	StoragePath  string    `json:"storage_path"`  // Relative to home snapshots dir
	ByteSize     int64     `json:"byte_size"`
	ElementCount int       `json:"element_count"`
	CreatedAt    time.Time `json:"created_at"`
	CreatedBy    string    `json:"created_by"`
}
