// Package sdk provides the operation developer interface for RAMPART.
// Every operation implements the Operation interface and declares its
// metadata via OperationMeta.
package sdk

import "context"

// RiskClass constants for operation classification.
const (
	RiskReadOnly    = "read_only"
	RiskWrite       = "write"
	RiskDestructive = "destructive"
)

// Conventional output keys the runner understands. An operation that
// wants its result snapshotted puts the canonical YAML document under
// OutputDocument and the matching counts alongside it.
const (
	OutputDocument     = "document"
	OutputElementKey   = "element_key"
	OutputElementCount = "element_count"
	OutputFilter       = "filter"
)

// OperationMeta declares everything the runtime needs to know about an
// operation before running it.
type OperationMeta struct {
	ID          string       `json:"id"`      // e.g., facts.external_gateway
	Name        string       `json:"name"`    // Human-readable name
	Version     string       `json:"version"` // semver
	Description string       `json:"description"`
	ObjectTypes []string     `json:"object_types"` // SMC element types touched
	RiskClass   string       `json:"risk_class"`
	Inputs      []InputSpec  `json:"inputs"`
	Outputs     []OutputSpec `json:"outputs"`
	References  []string     `json:"references,omitempty"`
	Author      string       `json:"author"`
}

// InputSpec describes an operation input parameter.
type InputSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string | int | bool | []string
	Default     any    `json:"default,omitempty"`
	Description string `json:"description"`
	Required    bool   `json:"required,omitempty"`
}

// OutputSpec describes an operation output field.
type OutputSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ServerInfo is an immutable copy of the target management center's
// non-secret connection state.
type ServerInfo struct {
	URL        string `json:"url"`
	APIVersion string `json:"api_version"`
	CredName   string `json:"cred_name,omitempty"`
}

// RunContext provides operations with everything they need for execution.
// Context carries cancellation for the run; a nil Context means background.
type RunContext struct {
	Context context.Context
	Server  ServerInfo
	Inputs  map[string]any
	RunID   string
	DryRun  bool
}

// Ctx returns the run's context, defaulting to context.Background.
func (ctx RunContext) Ctx() context.Context {
	if ctx.Context == nil {
		return context.Background()
	}
	return ctx.Context
}

// InputString is a helper to get a string input with default handling.
func (ctx RunContext) InputString(name string) string {
	if v, ok := ctx.Inputs[name]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// InputInt is a helper to get an int input with default handling.
func (ctx RunContext) InputInt(name string) int {
	if v, ok := ctx.Inputs[name]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return 0
}

// InputBool is a helper to get a bool input with default handling.
func (ctx RunContext) InputBool(name string) bool {
	if v, ok := ctx.Inputs[name]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// InputStringSlice is a helper to get a []string input. JSON-decoded
// inputs arrive as []any, so both forms are accepted.
func (ctx RunContext) InputStringSlice(name string) []string {
	v, ok := ctx.Inputs[name]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		var out []string
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// DryRunResult describes what an operation would do without executing.
type DryRunResult struct {
	Description string   `json:"description"`
	WouldMutate bool     `json:"would_mutate"`
	APICalls    []string `json:"api_calls,omitempty"`
}

// RunResult is the output of an operation execution.
type RunResult struct {
	Outputs  map[string]any `json:"outputs,omitempty"`
	Error    error          `json:"-"`
	ErrorMsg string         `json:"error,omitempty"`
}

// ErrResult creates a RunResult from an error.
func ErrResult(err error) RunResult {
	return RunResult{Error: err, ErrorMsg: err.Error()}
}

// Progress reports execution progress.
type Progress interface {
	Update(current int, message string)
	Total(total int)
}

// Operation is the interface that all RAMPART operations must implement.
type Operation interface {
	Meta() OperationMeta
	DryRun(ctx RunContext) DryRunResult
	Run(ctx RunContext, progress Progress) RunResult
}

// NoOpProgress is a progress reporter that discards updates.
type noOpProgress struct{}

func (noOpProgress) Update(int, string) {}
func (noOpProgress) Total(int)          {}

// NoOpProgress is a singleton no-op progress reporter.
var NoOpProgress Progress = noOpProgress{}
