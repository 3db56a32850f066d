package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rampart-sec/rampart/internal/errs"
	"github.com/rampart-sec/rampart/internal/smc"
)

// Relation names a gateway relationship that can be inlined. The set is
// closed; unknown names are rejected before any network traffic.
type Relation string

const (
	RelationGatewayProfile Relation = "gateway_profile"
	RelationVPNSite        Relation = "vpn_site"
)

// AllRelations returns the closed set of expandable relationships.
func AllRelations() []Relation {
	return []Relation{RelationGatewayProfile, RelationVPNSite}
}

// IsValid reports whether the relation is in the closed set.
func (r Relation) IsValid() bool {
	return r == RelationGatewayProfile || r == RelationVPNSite
}

// ParseRelations validates a whole expansion request up front. The first
// unknown name fails the request; duplicates collapse while keeping the
// first occurrence's position.
func ParseRelations(names []string) ([]Relation, error) {
	relations := make([]Relation, 0, len(names))
	seen := make(map[Relation]bool, len(names))
	for _, name := range names {
		rel := Relation(name)
		if !rel.IsValid() {
			return nil, errs.Validation("gateway.expand",
				fmt.Sprintf("unknown relationship %q (valid: gateway_profile, vpn_site)", name))
		}
		if seen[rel] {
			continue
		}
		seen[rel] = true
		relations = append(relations, rel)
	}
	return relations, nil
}

// Expander inlines referenced elements into gateway copies.
type Expander struct {
	client *smc.Client
	logger zerolog.Logger
}

// NewExpander creates an Expander over the given management center client.
func NewExpander(client *smc.Client, logger zerolog.Logger) *Expander {
	return &Expander{
		client: client,
		logger: logger.With().Str("component", "expander").Logger(),
	}
}

// Expand returns an enriched copy of gw with the requested relationships
// inlined. The input gateway is never modified. Relationships that were
// not requested keep their bare references. Any fetch failure aborts the
// whole expansion; no partially expanded gateway is ever returned.
func (e *Expander) Expand(ctx context.Context, gw Gateway, relations []Relation) (Gateway, error) {
	for _, rel := range relations {
		if !rel.IsValid() {
			return Gateway{}, errs.Validation("gateway.expand",
				fmt.Sprintf("unknown relationship %q", string(rel)))
		}
	}

	out := gw.Clone()
	for _, rel := range relations {
		var err error
		switch rel {
		case RelationGatewayProfile:
			err = e.expandProfile(ctx, &out)
		case RelationVPNSite:
			err = e.expandSites(ctx, &out)
		}
		if err != nil {
			return Gateway{}, err
		}
	}
	return out, nil
}

// expandProfile resolves the single gateway_profile reference. A gateway
// without a profile reference stays bare.
func (e *Expander) expandProfile(ctx context.Context, gw *Gateway) error {
	if gw.ProfileRef == "" {
		return nil
	}

	elements, err := e.client.Fetch(ctx, smc.TypeGatewayProfile, "")
	if err != nil {
		return err
	}

	for _, el := range elements {
		if el.Href != gw.ProfileRef {
			continue
		}
		profile, err := DecodeProfile(el)
		if err != nil {
			return err
		}
		gw.Profile = &profile
		return nil
	}

	e.logger.Warn().
		Str("gateway", gw.Name).
		Str("ref", gw.ProfileRef).
		Msg("profile reference does not resolve")
	return nil
}

// expandSites resolves every vpn_site reference, preserving reference
// order. A gateway with zero site references inlines an empty collection
// without touching the network.
func (e *Expander) expandSites(ctx context.Context, gw *Gateway) error {
	gw.Sites = make([]VPNSite, 0, len(gw.SiteRefs))
	if len(gw.SiteRefs) == 0 {
		return nil
	}

	elements, err := e.client.Fetch(ctx, smc.TypeVPNSite, "")
	if err != nil {
		return err
	}

	byHref := make(map[string]smc.Element, len(elements))
	for _, el := range elements {
		byHref[el.Href] = el
	}

	for _, ref := range gw.SiteRefs {
		el, ok := byHref[ref]
		if !ok {
			e.logger.Warn().
				Str("gateway", gw.Name).
				Str("ref", ref).
				Msg("site reference does not resolve")
			continue
		}
		site, err := DecodeSite(el)
		if err != nil {
			return err
		}
		gw.Sites = append(gw.Sites, site)
	}
	return nil
}
