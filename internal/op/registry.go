// Package op implements the operation registry and execution runner.
// Operations are built-in Go structs registered at startup and recorded
// in the op_registry table so past runs stay attributable even after an
// operation is renamed or retired.
package op

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rampart-sec/rampart/internal/audit"
	"github.com/rampart-sec/rampart/internal/core"
	"github.com/rampart-sec/rampart/internal/history"
	"github.com/rampart-sec/rampart/internal/smc"
	"github.com/rampart-sec/rampart/internal/snapshot"
	sdk "github.com/rampart-sec/rampart/pkg/sdk/v1"
)

// Registry holds all available operations.
type Registry struct {
	mu     sync.RWMutex
	ops    map[string]sdk.Operation
	logger zerolog.Logger
}

// NewRegistry creates an operation registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		ops:    make(map[string]sdk.Operation),
		logger: logger,
	}
}

// Register adds an operation to the registry.
func (r *Registry) Register(op sdk.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta := op.Meta()
	r.ops[meta.ID] = op
	r.logger.Debug().Str("op", meta.ID).Str("version", meta.Version).Msg("operation registered")
}

// Get returns an operation by ID.
func (r *Registry) Get(id string) (sdk.Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[id]
	return op, ok
}

// List returns all registered operation metadata, sorted by ID.
func (r *Registry) List() []sdk.OperationMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var metas []sdk.OperationMeta
	for _, op := range r.ops {
		metas = append(metas, op.Meta())
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].ID < metas[j].ID })
	return metas
}

// Search returns operations matching the given criteria.
func (r *Registry) Search(keyword, objectType, riskClass string) []sdk.OperationMeta {
	keyword = strings.ToLower(keyword)
	objectType = strings.ToLower(objectType)
	riskClass = strings.ToLower(riskClass)

	var results []sdk.OperationMeta
	for _, meta := range r.List() {
		if !matchesFilter(meta, keyword, objectType, riskClass) {
			continue
		}
		results = append(results, meta)
	}
	return results
}

func matchesFilter(meta sdk.OperationMeta, keyword, objectType, riskClass string) bool {
	if keyword != "" {
		haystack := strings.ToLower(meta.ID + " " + meta.Name + " " + meta.Description)
		if !strings.Contains(haystack, keyword) {
			return false
		}
	}
	if objectType != "" {
		found := false
		for _, ot := range meta.ObjectTypes {
			if strings.ToLower(ot) == objectType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if riskClass != "" && strings.ToLower(meta.RiskClass) != riskClass {
		return false
	}
	return true
}

// SyncToDB records all registered operations in the op_registry table.
func (r *Registry) SyncToDB(db *sql.DB) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, meta := range r.List() {
		typesJSON, _ := json.Marshal(meta.ObjectTypes)
		_, err := db.Exec(
			`INSERT OR REPLACE INTO op_registry (id, name, version, description, object_types, risk_class, registered_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			meta.ID, meta.Name, meta.Version, meta.Description,
			string(typesJSON), meta.RiskClass, now,
		)
		if err != nil {
			return fmt.Errorf("recording operation %s: %w", meta.ID, err)
		}
	}
	return nil
}

// --- execution ---

// Runner executes operations and records their results.
type Runner struct {
	registry  *Registry
	history   *history.Manager
	audit     *audit.Logger
	snapshots *snapshot.Store
	server    sdk.ServerInfo
	logger    zerolog.Logger
}

// NewRunner creates an operation execution runner.
func NewRunner(reg *Registry, hist *history.Manager, al *audit.Logger, logger zerolog.Logger) *Runner {
	return &Runner{
		registry: reg,
		history:  hist,
		audit:    al,
		logger:   logger,
	}
}

// SetSnapshotStore enables automatic snapshotting of operation documents.
func (r *Runner) SetSnapshotStore(store *snapshot.Store) {
	r.snapshots = store
}

// SetServerInfo sets the non-secret server state passed to operations.
func (r *Runner) SetServerInfo(info sdk.ServerInfo) {
	r.server = info
}

// RunConfig holds configuration for one operation execution.
type RunConfig struct {
	OpID         string
	Inputs       map[string]any
	DryRun       bool
	SaveSnapshot bool
	Operator     string
}

// Outcome bundles everything one execution produced.
type Outcome struct {
	Run      *core.RunRecord
	Result   sdk.RunResult
	DryRun   *sdk.DryRunResult
	Snapshot *core.SnapshotRecord
}

// Execute runs an operation and records the result. Operation failures
// are reported through Outcome.Result.Error and the run record, not the
// returned error, which covers runner-level problems only.
func (r *Runner) Execute(ctx context.Context, cfg RunConfig) (*Outcome, error) {
	op, ok := r.registry.Get(cfg.OpID)
	if !ok {
		return nil, fmt.Errorf("operation not found: %s", cfg.OpID)
	}
	meta := op.Meta()

	// Populate defaults for unset inputs
	inputs := make(map[string]any)
	for _, spec := range meta.Inputs {
		if v, ok := cfg.Inputs[spec.Name]; ok {
			inputs[spec.Name] = v
		} else if spec.Default != nil {
			inputs[spec.Name] = spec.Default
		}
	}

	rec, err := r.history.Begin(meta.ID, meta.Version, inputs, cfg.Operator)
	if err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}

	r.audit.Record(audit.EventOpStarted, "runner", rec.UUID, map[string]any{
		"op_id":      meta.ID,
		"risk_class": meta.RiskClass,
		"dry_run":    cfg.DryRun,
	})

	runCtx := sdk.RunContext{
		Context: ctx,
		Server:  r.server,
		Inputs:  inputs,
		RunID:   rec.UUID,
		DryRun:  cfg.DryRun,
	}

	if cfg.DryRun {
		dry := op.DryRun(runCtx)
		if err := r.history.FinishDryRun(rec.UUID); err != nil {
			return nil, err
		}
		rec.Status = core.RunDryRun
		r.audit.Record(audit.EventOpFinished, "runner", rec.UUID, map[string]any{
			"op_id":  meta.ID,
			"status": string(core.RunDryRun),
		})
		return &Outcome{Run: rec, DryRun: &dry}, nil
	}

	result := op.Run(runCtx, &progressReporter{logger: r.logger, runID: rec.UUID})

	if result.Error != nil {
		if errors.Is(result.Error, context.Canceled) {
			r.history.Cancel(rec.UUID)
			rec.Status = core.RunCancelled
		} else {
			r.history.Fail(rec.UUID, result.Error)
			rec.Status = core.RunError
		}
		detail := result.Error.Error()
		rec.ErrorDetail = &detail

		r.audit.Record(audit.EventOpFailed, "runner", rec.UUID, map[string]any{
			"op_id": meta.ID,
			"error": detail,
		})
		return &Outcome{Run: rec, Result: result}, nil
	}

	outcome := &Outcome{Run: rec, Result: result}
	count := outputInt(result.Outputs, sdk.OutputElementCount)

	if cfg.SaveSnapshot && r.snapshots != nil {
		if doc, ok := result.Outputs[sdk.OutputDocument].(string); ok && doc != "" {
			snap, snapErr := r.snapshots.Save(snapshot.SaveInput{
				RunUUID:      &rec.UUID,
				ElementKey:   outputString(result.Outputs, sdk.OutputElementKey),
				Filter:       outputString(result.Outputs, sdk.OutputFilter),
				Content:      []byte(doc),
				ElementCount: count,
				CreatedBy:    cfg.Operator,
			})
			if snapErr != nil {
				r.logger.Warn().Err(snapErr).Str("run", rec.UUID).Msg("failed to store snapshot")
			} else {
				outcome.Snapshot = snap
				rec.SnapshotUUID = snap.UUID
			}
		}
	}

	if err := r.history.Finish(rec.UUID, count, rec.SnapshotUUID); err != nil {
		return nil, err
	}
	rec.Status = core.RunSuccess
	rec.GatewayCount = count

	r.audit.Record(audit.EventOpFinished, "runner", rec.UUID, map[string]any{
		"op_id":         meta.ID,
		"status":        string(core.RunSuccess),
		"element_count": count,
	})
	return outcome, nil
}

func outputInt(outputs map[string]any, key string) int {
	switch n := outputs[key].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func outputString(outputs map[string]any, key string) string {
	if s, ok := outputs[key].(string); ok {
		return s
	}
	return ""
}

type progressReporter struct {
	logger zerolog.Logger
	runID  string
}

func (p *progressReporter) Update(current int, message string) {
	p.logger.Debug().Str("run", p.runID).Int("progress", current).Str("msg", message).Msg("operation progress")
}

func (p *progressReporter) Total(total int) {
	p.logger.Debug().Str("run", p.runID).Int("total", total).Msg("operation total")
}

// RegisterBuiltinOps registers all built-in operations with the registry.
func RegisterBuiltinOps(reg *Registry, client *smc.Client, logger zerolog.Logger) {
	reg.Register(NewExternalGatewayFactsOp(client, logger))
	reg.Register(&GatewayProfileFactsOp{client: client})
	reg.Register(&VPNSiteFactsOp{client: client})
}
