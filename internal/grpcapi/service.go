// service.go implements the RAMPART API service layer.
// This is the business logic layer that both gRPC handlers and CLI can use.
package grpcapi

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rampart-sec/rampart/internal/audit"
	"github.com/rampart-sec/rampart/internal/core"
	"github.com/rampart-sec/rampart/internal/diff"
	"github.com/rampart-sec/rampart/internal/facts"
	"github.com/rampart-sec/rampart/internal/history"
	"github.com/rampart-sec/rampart/internal/op"
	"github.com/rampart-sec/rampart/internal/snapshot"
	sdk "github.com/rampart-sec/rampart/pkg/sdk/v1"
)

// Service is the unified API service that backs both gRPC and direct CLI access.
type Service struct {
	engine *core.Engine
	logger zerolog.Logger
}

// NewService creates an API service backed by the given engine.
func NewService(engine *core.Engine) *Service {
	return &Service{
		engine: engine,
		logger: engine.Logger,
	}
}

// --- status operations ---

// StatusInfo reports the home state and audit health.
type StatusInfo struct {
	HomeDir         string `json:"home_dir"`
	ServerURL       string `json:"server_url"`
	APIVersion      string `json:"api_version"`
	VaultPresent    bool   `json:"vault_present"`
	CredentialCount int    `json:"credential_count"`
	RunCount        int    `json:"run_count"`
	SnapshotCount   int    `json:"snapshot_count"`
	AuditRecords    int    `json:"audit_records"`
	AuditChainValid bool   `json:"audit_chain_valid"`
}

func (s *Service) GetStatus() (*StatusInfo, error) {
	st, err := s.engine.Status()
	if err != nil {
		return nil, err
	}
	return &StatusInfo{
		HomeDir:         st.HomeDir,
		ServerURL:       st.ServerURL,
		APIVersion:      st.APIVersion,
		VaultPresent:    st.VaultPresent,
		CredentialCount: st.CredentialCount,
		RunCount:        st.RunCount,
		SnapshotCount:   st.SnapshotCount,
		AuditRecords:    st.AuditRecords,
		AuditChainValid: st.AuditChainValid,
	}, nil
}

// --- operation execution ---

func (s *Service) newRunner(credName string) (*op.Runner, error) {
	client, err := s.engine.NewSMCClient(credName)
	if err != nil {
		return nil, fmt.Errorf("building management client: %w", err)
	}

	reg := op.NewRegistry(s.logger)
	op.RegisterBuiltinOps(reg, client, s.logger)

	runner := op.NewRunner(reg, history.NewManager(s.engine.MetadataDB), s.engine.AuditLogger, s.logger)
	runner.SetSnapshotStore(snapshot.NewStore(s.engine.MetadataDB, s.engine.HomeDir).WithAudit(s.engine.AuditLogger))
	runner.SetServerInfo(sdk.ServerInfo{
		URL:        s.engine.Config.Server.URL,
		APIVersion: s.engine.Config.Server.APIVersion,
		CredName:   credName,
	})
	return runner, nil
}

// RetrieveFactsRequest holds parameters for a facts retrieval.
type RetrieveFactsRequest struct {
	Filter       string   `json:"filter,omitempty"`
	Relations    []string `json:"relations,omitempty"`
	AsYAML       bool     `json:"as_yaml"`
	SaveSnapshot bool     `json:"save_snapshot"`
	CredName     string   `json:"cred_name,omitempty"`
	Operator     string   `json:"operator,omitempty"`
}

// RetrieveFactsResult holds the outcome of a facts retrieval.
type RetrieveFactsResult struct {
	RunUUID      string                      `json:"run_uuid"`
	Status       string                      `json:"status"`
	GatewayCount int                         `json:"gateway_count"`
	SnapshotUUID string                      `json:"snapshot_uuid,omitempty"`
	Facts        map[string]facts.GatewayDoc `json:"facts,omitempty"`
	YAML         string                      `json:"yaml,omitempty"`
	Error        string                      `json:"error,omitempty"`
	Duration     string                      `json:"duration,omitempty"`
}

func (s *Service) RetrieveFacts(ctx context.Context, req RetrieveFactsRequest) (*RetrieveFactsResult, error) {
	runner, err := s.newRunner(req.CredName)
	if err != nil {
		return nil, err
	}

	relations := req.Relations
	if relations == nil {
		relations = []string{}
	}

	outcome, err := runner.Execute(ctx, op.RunConfig{
		OpID: "facts.external_gateway",
		Inputs: map[string]any{
			"filter":    req.Filter,
			"relations": relations,
			"as_yaml":   req.AsYAML,
		},
		SaveSnapshot: req.SaveSnapshot,
		Operator:     operatorOr(req.Operator),
	})
	if err != nil {
		return nil, err
	}

	result := &RetrieveFactsResult{
		RunUUID:      outcome.Run.UUID,
		Status:       string(outcome.Run.Status),
		GatewayCount: outcome.Run.GatewayCount,
		SnapshotUUID: outcome.Run.SnapshotUUID,
	}
	if outcome.Run.CompletedAt != nil {
		result.Duration = outcome.Run.CompletedAt.Sub(outcome.Run.StartedAt).String()
	}
	if outcome.Result.Error != nil {
		result.Error = outcome.Result.Error.Error()
		return result, nil
	}

	if req.AsYAML {
		result.YAML, _ = outcome.Result.Outputs[sdk.OutputDocument].(string)
	} else if m, ok := outcome.Result.Outputs["facts"].(map[string]facts.GatewayDoc); ok {
		result.Facts = m
	}
	return result, nil
}

// RunOpRequest holds parameters for running an arbitrary operation.
type RunOpRequest struct {
	OpID         string         `json:"op_id"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	DryRun       bool           `json:"dry_run"`
	SaveSnapshot bool           `json:"save_snapshot"`
	CredName     string         `json:"cred_name,omitempty"`
	Operator     string         `json:"operator,omitempty"`
}

// RunOpResult holds the result of an operation execution.
type RunOpResult struct {
	RunUUID      string         `json:"run_uuid"`
	Status       string         `json:"status"`
	Outputs      map[string]any `json:"outputs,omitempty"`
	DryRunPlan   string         `json:"dry_run_plan,omitempty"`
	SnapshotUUID string         `json:"snapshot_uuid,omitempty"`
	Error        string         `json:"error,omitempty"`
	Duration     string         `json:"duration,omitempty"`
}

func (s *Service) RunOp(ctx context.Context, req RunOpRequest) (*RunOpResult, error) {
	runner, err := s.newRunner(req.CredName)
	if err != nil {
		return nil, err
	}

	outcome, err := runner.Execute(ctx, op.RunConfig{
		OpID:         req.OpID,
		Inputs:       req.Inputs,
		DryRun:       req.DryRun,
		SaveSnapshot: req.SaveSnapshot,
		Operator:     operatorOr(req.Operator),
	})
	if err != nil {
		return nil, err
	}

	result := &RunOpResult{
		RunUUID:      outcome.Run.UUID,
		Status:       string(outcome.Run.Status),
		SnapshotUUID: outcome.Run.SnapshotUUID,
	}
	if outcome.DryRun != nil {
		result.DryRunPlan = outcome.DryRun.Description
	}
	if outcome.Result.Error != nil {
		result.Error = outcome.Result.Error.Error()
	} else {
		result.Outputs = outcome.Result.Outputs
	}
	return result, nil
}

func operatorOr(operator string) string {
	if operator == "" {
		return "server"
	}
	return operator
}

// --- operation metadata ---

// OpInfo is a transport-safe operation metadata representation.
type OpInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	RiskClass   string   `json:"risk_class"`
	ObjectTypes []string `json:"object_types"`
}

func (s *Service) ListOps(keyword, objectType, riskClass string) []OpInfo {
	reg := op.NewRegistry(s.logger)
	op.RegisterBuiltinOps(reg, nil, s.logger)

	var metas []OpInfo
	for _, m := range reg.Search(keyword, objectType, riskClass) {
		metas = append(metas, OpInfo{
			ID:          m.ID,
			Name:        m.Name,
			Version:     m.Version,
			Description: m.Description,
			RiskClass:   m.RiskClass,
			ObjectTypes: m.ObjectTypes,
		})
	}
	return metas
}

// --- run history ---

// RunInfo is a transport-safe run representation.
type RunInfo struct {
	UUID         string `json:"uuid"`
	OpID         string `json:"op_id"`
	OpVersion    string `json:"op_version"`
	Status       string `json:"status"`
	StartedAt    string `json:"started_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
	GatewayCount int    `json:"gateway_count"`
	SnapshotUUID string `json:"snapshot_uuid,omitempty"`
	Error        string `json:"error,omitempty"`
}

func runToInfo(r *core.RunRecord) RunInfo {
	info := RunInfo{
		UUID:         r.UUID,
		OpID:         r.OpID,
		OpVersion:    r.OpVersion,
		Status:       string(r.Status),
		StartedAt:    r.StartedAt.Format(time.RFC3339),
		GatewayCount: r.GatewayCount,
		SnapshotUUID: r.SnapshotUUID,
	}
	if r.CompletedAt != nil {
		info.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	if r.ErrorDetail != nil {
		info.Error = *r.ErrorDetail
	}
	return info
}

func (s *Service) ListRuns(opFilter string, limit int) ([]RunInfo, error) {
	mgr := history.NewManager(s.engine.MetadataDB)
	runs, err := mgr.List(opFilter, limit)
	if err != nil {
		return nil, err
	}

	var result []RunInfo
	for i := range runs {
		result = append(result, runToInfo(&runs[i]))
	}
	return result, nil
}

func (s *Service) GetRun(runUUID string) (*RunInfo, error) {
	mgr := history.NewManager(s.engine.MetadataDB)
	run, err := mgr.Get(runUUID)
	if err != nil {
		return nil, err
	}
	info := runToInfo(run)
	return &info, nil
}

// --- snapshots ---

// SnapshotInfo is a transport-safe snapshot representation.
type SnapshotInfo struct {
	UUID         string `json:"uuid"`
	RunUUID      string `json:"run_uuid,omitempty"`
	ElementKey   string `json:"element_key"`
	Filter       string `json:"filter,omitempty"`
	ContentHash  string `json:"content_hash"`
	ByteSize     int64  `json:"byte_size"`
	ElementCount int    `json:"element_count"`
	CreatedAt    string `json:"created_at"`
}

func snapshotToInfo(rec *core.SnapshotRecord) SnapshotInfo {
	info := SnapshotInfo{
		UUID:         rec.UUID,
		ElementKey:   rec.ElementKey,
		Filter:       rec.Filter,
		ContentHash:  rec.ContentHash,
		ByteSize:     rec.ByteSize,
		ElementCount: rec.ElementCount,
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.RunUUID != nil {
		info.RunUUID = *rec.RunUUID
	}
	return info
}

func (s *Service) snapshotStore() *snapshot.Store {
	return snapshot.NewStore(s.engine.MetadataDB, s.engine.HomeDir).WithAudit(s.engine.AuditLogger)
}

func (s *Service) ListSnapshots(elementKey string) ([]SnapshotInfo, error) {
	records, err := s.snapshotStore().List(elementKey)
	if err != nil {
		return nil, err
	}

	var result []SnapshotInfo
	for i := range records {
		result = append(result, snapshotToInfo(&records[i]))
	}
	return result, nil
}

// SnapshotContent is a snapshot record together with its document.
type SnapshotContent struct {
	SnapshotInfo
	Content string `json:"content"`
}

func (s *Service) GetSnapshot(snapUUID string) (*SnapshotContent, error) {
	store := s.snapshotStore()
	rec, err := store.Get(snapUUID)
	if err != nil {
		return nil, err
	}
	content, err := store.ReadContent(rec)
	if err != nil {
		return nil, err
	}
	return &SnapshotContent{
		SnapshotInfo: snapshotToInfo(rec),
		Content:      string(content),
	}, nil
}

// DiffResult pairs the compared snapshots with their report.
type DiffResult struct {
	Older  SnapshotInfo `json:"older"`
	Newer  SnapshotInfo `json:"newer"`
	Report *diff.Report `json:"report"`
}

// DiffSnapshots compares two snapshots by UUID. The first argument is
// treated as the older document.
func (s *Service) DiffSnapshots(olderUUID, newerUUID string) (*DiffResult, error) {
	store := s.snapshotStore()

	older, err := store.Get(olderUUID)
	if err != nil {
		return nil, err
	}
	newer, err := store.Get(newerUUID)
	if err != nil {
		return nil, err
	}

	olderDoc, err := store.ReadContent(older)
	if err != nil {
		return nil, err
	}
	newerDoc, err := store.ReadContent(newer)
	if err != nil {
		return nil, err
	}

	report, err := diff.Compare(olderDoc, newerDoc)
	if err != nil {
		return nil, err
	}
	return &DiffResult{
		Older:  snapshotToInfo(older),
		Newer:  snapshotToInfo(newer),
		Report: report,
	}, nil
}

func (s *Service) PruneSnapshots(keep int) (int, error) {
	return s.snapshotStore().Prune(keep)
}

// --- audit operations ---

func (s *Service) VerifyAuditChain() (bool, int, error) {
	return audit.Verify(s.engine.AuditDB)
}
