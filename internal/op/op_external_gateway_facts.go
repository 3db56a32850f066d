package op

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rampart-sec/rampart/internal/facts"
	"github.com/rampart-sec/rampart/internal/smc"
	sdk "github.com/rampart-sec/rampart/pkg/sdk/v1"
)

// ExternalGatewayFactsOp retrieves external VPN gateway elements,
// optionally inlining their gateway profile and VPN site relationships.
type ExternalGatewayFactsOp struct {
	pipeline *facts.Pipeline
}

// NewExternalGatewayFactsOp wires the facts pipeline over one client.
func NewExternalGatewayFactsOp(client *smc.Client, logger zerolog.Logger) *ExternalGatewayFactsOp {
	return &ExternalGatewayFactsOp{pipeline: facts.NewPipeline(client, logger)}
}

func (m *ExternalGatewayFactsOp) Meta() sdk.OperationMeta {
	return sdk.OperationMeta{
		ID:          "facts.external_gateway",
		Name:        "External Gateway Facts",
		Version:     "1.0.0",
		Description: "Retrieves external VPN gateway elements from the management center, optionally expanding gateway profile and VPN site references into inlined documents.",
		ObjectTypes: []string{"external_gateway", "gateway_profile", "vpn_site"},
		RiskClass:   sdk.RiskReadOnly,
		Inputs: []sdk.InputSpec{
			{Name: "filter", Type: "string", Default: "", Description: "Exact element name to match; empty retrieves all"},
			{Name: "relations", Type: "[]string", Default: []string{}, Description: "Relationships to inline: gateway_profile, vpn_site"},
			{Name: "as_yaml", Type: "bool", Default: false, Description: "Render the canonical YAML document instead of a facts mapping"},
		},
		Outputs: []sdk.OutputSpec{
			{Name: "facts", Type: "map", Description: "Facts mapping keyed by gateway name"},
			{Name: sdk.OutputDocument, Type: "string", Description: "Canonical YAML facts document"},
			{Name: sdk.OutputElementCount, Type: "int", Description: "Number of gateways retrieved"},
		},
		Author: "RAMPART Core",
	}
}

func (m *ExternalGatewayFactsOp) DryRun(ctx sdk.RunContext) sdk.DryRunResult {
	relations := ctx.InputStringSlice("relations")

	calls := []string{"GET /elements/external_gateway"}
	for _, rel := range relations {
		calls = append(calls, "GET /elements/"+rel)
	}

	expand := "nothing"
	if len(relations) > 0 {
		expand = strings.Join(relations, ", ")
	}
	return sdk.DryRunResult{
		Description: fmt.Sprintf("Would retrieve external_gateway elements with filter=%q and expand %s. No writes.",
			ctx.InputString("filter"), expand),
		WouldMutate: false,
		APICalls:    calls,
	}
}

func (m *ExternalGatewayFactsOp) Run(ctx sdk.RunContext, prog sdk.Progress) sdk.RunResult {
	req := facts.Request{
		Filter:    ctx.InputString("filter"),
		Relations: ctx.InputStringSlice("relations"),
		AsYAML:    ctx.InputBool("as_yaml"),
	}

	out, err := m.pipeline.Run(ctx.Ctx(), req)
	if err != nil {
		return sdk.ErrResult(err)
	}

	doc, err := out.Document()
	if err != nil {
		return sdk.ErrResult(fmt.Errorf("rendering document: %w", err))
	}

	count := out.Count()
	prog.Total(count)
	prog.Update(count, "gateways retrieved")

	outputs := map[string]any{
		sdk.OutputDocument:     string(doc),
		sdk.OutputElementKey:   facts.ElementKey,
		sdk.OutputElementCount: count,
		sdk.OutputFilter:       req.Filter,
	}
	if !out.AsYAML {
		outputs["facts"] = out.Facts
	}
	return sdk.RunResult{Outputs: outputs}
}
