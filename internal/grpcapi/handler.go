// handler.go implements a JSON-RPC-style handler over gRPC unary calls.
// This provides a working server without requiring protoc code generation.
// When proto generation is set up, these handlers can be replaced with proper
// generated service stubs that delegate to the same Service methods.
package grpcapi

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RPCRequest is a generic JSON-RPC-style request.
type RPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RPCResponse is a generic JSON-RPC-style response.
type RPCResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Handler dispatches JSON-RPC requests to the Service.
type Handler struct {
	service  *Service
	dispatch map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// NewHandler creates a handler backed by the given service.
func NewHandler(svc *Service) *Handler {
	h := &Handler{service: svc}
	h.dispatch = map[string]handlerFunc{
		// Status
		"status.get": h.handleGetStatus,

		// Facts
		"facts.retrieve": h.handleRetrieveFacts,

		// Operations
		"ops.list": h.handleListOps,
		"ops.run":  h.handleRunOp,

		// Run history
		"runs.list": h.handleListRuns,
		"runs.get":  h.handleGetRun,

		// Snapshots
		"snapshots.list":  h.handleListSnapshots,
		"snapshots.get":   h.handleGetSnapshot,
		"snapshots.diff":  h.handleDiffSnapshots,
		"snapshots.prune": h.handlePruneSnapshots,

		// Audit
		"audit.verify": h.handleVerifyAudit,
	}
	return h
}

// Handle processes a JSON-RPC request and returns a response.
func (h *Handler) Handle(ctx context.Context, req *RPCRequest) *RPCResponse {
	fn, ok := h.dispatch[req.Method]
	if !ok {
		return &RPCResponse{Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}

	result, err := fn(ctx, req.Params)
	if err != nil {
		return &RPCResponse{Error: err.Error()}
	}

	resultJSON, _ := json.Marshal(result)
	return &RPCResponse{Result: resultJSON}
}

// RegisterWithGRPC registers the handler as a gRPC service using a generic
// unary interceptor pattern. Clients send RPCRequest JSON and receive RPCResponse JSON.
func (h *Handler) RegisterWithGRPC(s *grpc.Server) {
	// Register a generic service descriptor for the JSON-RPC handler
	sd := grpc.ServiceDesc{
		ServiceName: "rampart.v1.RampartService",
		HandlerType: (*rampartServiceHandler)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "Call",
				Handler:    h.grpcCallHandler,
			},
		},
		Streams: []grpc.StreamDesc{},
	}
	s.RegisterService(&sd, h)
}

// rampartServiceHandler is the interface type for gRPC service registration.
type rampartServiceHandler interface{}

func (h *Handler) grpcCallHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req RPCRequest
	if err := dec(&req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	resp := h.Handle(ctx, &req)
	return resp, nil
}

// --- Handler implementations ---

func (h *Handler) handleGetStatus(_ context.Context, _ json.RawMessage) (any, error) {
	return h.service.GetStatus()
}

func (h *Handler) handleRetrieveFacts(ctx context.Context, params json.RawMessage) (any, error) {
	var req RetrieveFactsRequest
	if params != nil {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}
	return h.service.RetrieveFacts(ctx, req)
}

type opSearchParams struct {
	Keyword    string `json:"keyword"`
	ObjectType string `json:"object_type"`
	RiskClass  string `json:"risk_class"`
}

func (h *Handler) handleListOps(_ context.Context, params json.RawMessage) (any, error) {
	var p opSearchParams
	if params != nil {
		json.Unmarshal(params, &p)
	}
	return h.service.ListOps(p.Keyword, p.ObjectType, p.RiskClass), nil
}

func (h *Handler) handleRunOp(ctx context.Context, params json.RawMessage) (any, error) {
	var req RunOpRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if req.OpID == "" {
		return nil, fmt.Errorf("op_id is required")
	}
	return h.service.RunOp(ctx, req)
}

type runListParams struct {
	Op    string `json:"op"`
	Limit int    `json:"limit"`
}

func (h *Handler) handleListRuns(_ context.Context, params json.RawMessage) (any, error) {
	var p runListParams
	if params != nil {
		json.Unmarshal(params, &p)
	}
	return h.service.ListRuns(p.Op, p.Limit)
}

type uuidParam struct {
	UUID string `json:"uuid"`
}

func (h *Handler) handleGetRun(_ context.Context, params json.RawMessage) (any, error) {
	var p uuidParam
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return h.service.GetRun(p.UUID)
}

type snapshotListParams struct {
	ElementKey string `json:"element_key"`
}

func (h *Handler) handleListSnapshots(_ context.Context, params json.RawMessage) (any, error) {
	var p snapshotListParams
	if params != nil {
		json.Unmarshal(params, &p)
	}
	return h.service.ListSnapshots(p.ElementKey)
}

func (h *Handler) handleGetSnapshot(_ context.Context, params json.RawMessage) (any, error) {
	var p uuidParam
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return h.service.GetSnapshot(p.UUID)
}

type diffParams struct {
	Older string `json:"older"`
	Newer string `json:"newer"`
}

func (h *Handler) handleDiffSnapshots(_ context.Context, params json.RawMessage) (any, error) {
	var p diffParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Older == "" || p.Newer == "" {
		return nil, fmt.Errorf("both older and newer snapshot UUIDs are required")
	}
	return h.service.DiffSnapshots(p.Older, p.Newer)
}

type pruneParams struct {
	Keep int `json:"keep"`
}

func (h *Handler) handlePruneSnapshots(_ context.Context, params json.RawMessage) (any, error) {
	var p pruneParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	pruned, err := h.service.PruneSnapshots(p.Keep)
	if err != nil {
		return nil, err
	}
	return map[string]int{"pruned": pruned}, nil
}

func (h *Handler) handleVerifyAudit(_ context.Context, _ json.RawMessage) (any, error) {
	valid, count, err := h.service.VerifyAuditChain()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"valid": valid,
		"count": count,
	}, nil
}
