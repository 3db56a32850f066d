package op

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rampart-sec/rampart/internal/facts"
	"github.com/rampart-sec/rampart/internal/gateway"
	"github.com/rampart-sec/rampart/internal/smc"
	sdk "github.com/rampart-sec/rampart/pkg/sdk/v1"
)

// GatewayProfileFactsOp lists gateway profiles with their enabled
// negotiation capabilities.
type GatewayProfileFactsOp struct {
	client *smc.Client
}

func (m *GatewayProfileFactsOp) Meta() sdk.OperationMeta {
	return sdk.OperationMeta{
		ID:          "facts.gateway_profile",
		Name:        "Gateway Profile Facts",
		Version:     "1.0.0",
		Description: "Lists gateway profile elements and the negotiation capabilities each one enables.",
		ObjectTypes: []string{"gateway_profile"},
		RiskClass:   sdk.RiskReadOnly,
		Inputs: []sdk.InputSpec{
			{Name: "filter", Type: "string", Default: "", Description: "Exact element name to match; empty retrieves all"},
		},
		Outputs: []sdk.OutputSpec{
			{Name: "facts", Type: "map", Description: "Profiles keyed by name"},
			{Name: sdk.OutputDocument, Type: "string", Description: "Canonical YAML document"},
			{Name: sdk.OutputElementCount, Type: "int", Description: "Number of profiles retrieved"},
		},
		Author: "RAMPART Core",
	}
}

func (m *GatewayProfileFactsOp) DryRun(ctx sdk.RunContext) sdk.DryRunResult {
	return sdk.DryRunResult{
		Description: fmt.Sprintf("Would retrieve gateway_profile elements with filter=%q. No writes.", ctx.InputString("filter")),
		WouldMutate: false,
		APICalls:    []string{"GET /elements/gateway_profile"},
	}
}

type profileDocument struct {
	GatewayProfile []facts.ProfileDoc `yaml:"gateway_profile"`
}

func (m *GatewayProfileFactsOp) Run(ctx sdk.RunContext, prog sdk.Progress) sdk.RunResult {
	filter := ctx.InputString("filter")

	elems, err := m.client.Fetch(ctx.Ctx(), smc.TypeGatewayProfile, filter)
	if err != nil {
		return sdk.ErrResult(err)
	}
	prog.Total(len(elems))

	byName := make(map[string]facts.ProfileDoc, len(elems))
	docs := make([]facts.ProfileDoc, 0, len(elems))
	for i, el := range elems {
		profile, err := gateway.DecodeProfile(el)
		if err != nil {
			return sdk.ErrResult(fmt.Errorf("decoding profile %s: %w", el.Name, err))
		}
		doc := facts.ProfileDoc(profile)
		byName[doc.Name] = doc
		docs = append(docs, doc)
		prog.Update(i+1, "Decoded: "+doc.Name)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	data, err := yaml.Marshal(profileDocument{GatewayProfile: docs})
	if err != nil {
		return sdk.ErrResult(fmt.Errorf("rendering document: %w", err))
	}

	return sdk.RunResult{Outputs: map[string]any{
		"facts":                byName,
		sdk.OutputDocument:     string(data),
		sdk.OutputElementKey:   "gateway_profile",
		sdk.OutputElementCount: len(docs),
		sdk.OutputFilter:       filter,
	}}
}
