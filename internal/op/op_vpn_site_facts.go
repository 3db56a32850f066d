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

// VPNSiteFactsOp lists VPN sites and the protected networks behind them.
type VPNSiteFactsOp struct {
	client *smc.Client
}

func (m *VPNSiteFactsOp) Meta() sdk.OperationMeta {
	return sdk.OperationMeta{
		ID:          "facts.vpn_site",
		Name:        "VPN Site Facts",
		Version:     "1.0.0",
		Description: "Lists VPN site elements and the protected network references behind each one.",
		ObjectTypes: []string{"vpn_site"},
		RiskClass:   sdk.RiskReadOnly,
		Inputs: []sdk.InputSpec{
			{Name: "filter", Type: "string", Default: "", Description: "Exact element name to match; empty retrieves all"},
		},
		Outputs: []sdk.OutputSpec{
			{Name: "facts", Type: "map", Description: "Sites keyed by name"},
			{Name: sdk.OutputDocument, Type: "string", Description: "Canonical YAML document"},
			{Name: sdk.OutputElementCount, Type: "int", Description: "Number of sites retrieved"},
		},
		Author: "RAMPART Core",
	}
}

func (m *VPNSiteFactsOp) DryRun(ctx sdk.RunContext) sdk.DryRunResult {
	return sdk.DryRunResult{
		Description: fmt.Sprintf("Would retrieve vpn_site elements with filter=%q. No writes.", ctx.InputString("filter")),
		WouldMutate: false,
		APICalls:    []string{"GET /elements/vpn_site"},
	}
}

type siteDocument struct {
	VPNSite []facts.SiteDoc `yaml:"vpn_site"`
}

func (m *VPNSiteFactsOp) Run(ctx sdk.RunContext, prog sdk.Progress) sdk.RunResult {
	filter := ctx.InputString("filter")

	elems, err := m.client.Fetch(ctx.Ctx(), smc.TypeVPNSite, filter)
	if err != nil {
		return sdk.ErrResult(err)
	}
	prog.Total(len(elems))

	byName := make(map[string]facts.SiteDoc, len(elems))
	docs := make([]facts.SiteDoc, 0, len(elems))
	for i, el := range elems {
		site, err := gateway.DecodeSite(el)
		if err != nil {
			return sdk.ErrResult(fmt.Errorf("decoding site %s: %w", el.Name, err))
		}
		doc := facts.SiteDoc{Name: site.Name, Href: site.Href, SiteElement: site.Networks}
		byName[doc.Name] = doc
		docs = append(docs, doc)
		prog.Update(i+1, "Decoded: "+doc.Name)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })

	data, err := yaml.Marshal(siteDocument{VPNSite: docs})
	if err != nil {
		return sdk.ErrResult(fmt.Errorf("rendering document: %w", err))
	}

	return sdk.RunResult{Outputs: map[string]any{
		"facts":                byName,
		sdk.OutputDocument:     string(data),
		sdk.OutputElementKey:   "vpn_site",
		sdk.OutputElementCount: len(docs),
		sdk.OutputFilter:       filter,
	}}
}
