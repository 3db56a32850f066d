// Package gateway models external VPN gateways as the management center
// describes them and resolves their referenced relationships.
package gateway

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rampart-sec/rampart/internal/smc"
)

// Gateway is one external gateway element. Related elements arrive as
// href references; the expansion engine inlines them on request. A nil
// Profile or Sites field means the relationship was not expanded and the
// bare reference stands.
type Gateway struct {
	Name        string
	Href        string
	Comment     string
	TrustAllCAs bool
	Endpoints   []Endpoint

	ProfileRef string
	Profile    *GatewayProfile

	SiteRefs []string
	Sites    []VPNSite
}

// Endpoint is one tunnel endpoint of an external gateway.
type Endpoint struct {
	Name          string
	Address       string
	Enabled       bool
	BalancingMode string
	Dynamic       bool
}

// GatewayProfile describes the capability set negotiated with a gateway.
type GatewayProfile struct {
	Name         string
	Href         string
	Comment      string
	Capabilities []string
}

// VPNSite is one protected site behind a gateway. Networks holds the
// href references of the site's network elements.
type VPNSite struct {
	Name     string
	Href     string
	Networks []string
}

// Clone returns a deep copy. Expansion always works on a clone so the
// resolved gateway set is never mutated.
func (g Gateway) Clone() Gateway {
	out := g
	out.Endpoints = append([]Endpoint(nil), g.Endpoints...)
	out.SiteRefs = append([]string(nil), g.SiteRefs...)
	if g.Profile != nil {
		p := *g.Profile
		p.Capabilities = append([]string(nil), g.Profile.Capabilities...)
		out.Profile = &p
	}
	if g.Sites != nil {
		out.Sites = make([]VPNSite, len(g.Sites))
		for i, s := range g.Sites {
			out.Sites[i] = s
			out.Sites[i].Networks = append([]string(nil), s.Networks...)
		}
	}
	return out
}

// --- wire decoding ---

type gatewayWire struct {
	Name        string         `json:"name"`
	Href        string         `json:"href"`
	Comment     string         `json:"comment"`
	TrustAllCAs bool           `json:"trust_all_cas"`
	Profile     string         `json:"gateway_profile"`
	Sites       []string       `json:"vpn_site"`
	Endpoints   []endpointWire `json:"external_endpoint"`
}

type endpointWire struct {
	Name          string `json:"name"`
	Address       string `json:"address"`
	Enabled       bool   `json:"enabled"`
	BalancingMode string `json:"balancing_mode"`
	Dynamic       bool   `json:"dynamic"`
}

type profileWire struct {
	Name         string          `json:"name"`
	Href         string          `json:"href"`
	Comment      string          `json:"comment"`
	Capabilities map[string]bool `json:"capabilities"`
}

type siteWire struct {
	Name     string   `json:"name"`
	Href     string   `json:"href"`
	Networks []string `json:"site_element"`
}

// DecodeGateway turns a raw external_gateway element into a Gateway with
// all reference slices normalized to non-nil.
func DecodeGateway(el smc.Element) (Gateway, error) {
	var w gatewayWire
	if err := json.Unmarshal(el.Data, &w); err != nil {
		return Gateway{}, fmt.Errorf("decoding gateway %q: %w", el.Name, err)
	}

	gw := Gateway{
		Name:        w.Name,
		Href:        w.Href,
		Comment:     w.Comment,
		TrustAllCAs: w.TrustAllCAs,
		ProfileRef:  w.Profile,
		SiteRefs:    w.Sites,
		Endpoints:   make([]Endpoint, 0, len(w.Endpoints)),
	}
	if gw.SiteRefs == nil {
		gw.SiteRefs = []string{}
	}
	for _, ep := range w.Endpoints {
		gw.Endpoints = append(gw.Endpoints, Endpoint(ep))
	}
	return gw, nil
}

// DecodeProfile turns a raw gateway_profile element into a GatewayProfile.
// Capability flags collapse to a sorted list of the enabled names.
func DecodeProfile(el smc.Element) (GatewayProfile, error) {
	var w profileWire
	if err := json.Unmarshal(el.Data, &w); err != nil {
		return GatewayProfile{}, fmt.Errorf("decoding profile %q: %w", el.Name, err)
	}

	caps := make([]string, 0, len(w.Capabilities))
	for name, enabled := range w.Capabilities {
		if enabled {
			caps = append(caps, name)
		}
	}
	sort.Strings(caps)

	return GatewayProfile{
		Name:         w.Name,
		Href:         w.Href,
		Comment:      w.Comment,
		Capabilities: caps,
	}, nil
}

// DecodeSite turns a raw vpn_site element into a VPNSite.
func DecodeSite(el smc.Element) (VPNSite, error) {
	var w siteWire
	if err := json.Unmarshal(el.Data, &w); err != nil {
		return VPNSite{}, fmt.Errorf("decoding site %q: %w", el.Name, err)
	}
	if w.Networks == nil {
		w.Networks = []string{}
	}
	return VPNSite{Name: w.Name, Href: w.Href, Networks: w.Networks}, nil
}
