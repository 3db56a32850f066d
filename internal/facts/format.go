// Package facts turns resolved gateways into their presentation forms: a
// name-keyed mapping for programmatic callers and a deterministic YAML
// document for snapshots and run-to-run comparison.
package facts

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rampart-sec/rampart/internal/gateway"
)

// ElementKey is the root key of every YAML facts document.
const ElementKey = "external_gateway"

// GatewayDoc is the presentation form of one gateway. GatewayProfile and
// VPNSite hold either bare href references or inlined documents, depending
// on what the expansion request asked for.
type GatewayDoc struct {
	Name             string        `yaml:"name" json:"name"`
	Href             string        `yaml:"href,omitempty" json:"href,omitempty"`
	Comment          string        `yaml:"comment,omitempty" json:"comment,omitempty"`
	TrustAllCAs      bool          `yaml:"trust_all_cas,omitempty" json:"trust_all_cas,omitempty"`
	ExternalEndpoint []EndpointDoc `yaml:"external_endpoint" json:"external_endpoint"`
	GatewayProfile   any           `yaml:"gateway_profile,omitempty" json:"gateway_profile,omitempty"`
	VPNSite          any           `yaml:"vpn_site" json:"vpn_site"`
}

// EndpointDoc is one tunnel endpoint.
type EndpointDoc struct {
	Name          string `yaml:"name" json:"name"`
	Address       string `yaml:"address,omitempty" json:"address,omitempty"`
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	BalancingMode string `yaml:"balancing_mode,omitempty" json:"balancing_mode,omitempty"`
	Dynamic       bool   `yaml:"dynamic,omitempty" json:"dynamic,omitempty"`
}

// ProfileDoc is an inlined gateway profile.
type ProfileDoc struct {
	Name         string   `yaml:"name" json:"name"`
	Href         string   `yaml:"href,omitempty" json:"href,omitempty"`
	Comment      string   `yaml:"comment,omitempty" json:"comment,omitempty"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
}

// SiteDoc is an inlined VPN site.
type SiteDoc struct {
	Name        string   `yaml:"name" json:"name"`
	Href        string   `yaml:"href,omitempty" json:"href,omitempty"`
	SiteElement []string `yaml:"site_element" json:"site_element"`
}

// Output is the result of a formatting pass. Exactly one of Facts and
// YAML is populated, selected by AsYAML.
type Output struct {
	AsYAML bool
	Facts  map[string]GatewayDoc
	YAML   []byte
}

// Count returns the number of gateways in the output.
func (o Output) Count() int {
	if o.AsYAML {
		var doc document
		if err := yaml.Unmarshal(o.YAML, &doc); err != nil {
			return 0
		}
		return len(doc.ExternalGateway)
	}
	return len(o.Facts)
}

// Document returns the canonical YAML document for the output, whichever
// form was requested. Both forms render identical bytes for identical
// gateway sets.
func (o Output) Document() ([]byte, error) {
	if o.AsYAML {
		return o.YAML, nil
	}
	docs := make([]GatewayDoc, 0, len(o.Facts))
	for _, doc := range o.Facts {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return MarshalYAML(docs)
}

// document is the YAML root. Rendering always goes through structs so the
// byte output is identical for identical input, run after run.
type document struct {
	ExternalGateway []GatewayDoc `yaml:"external_gateway"`
}

// Build produces presentation docs sorted by gateway name.
func Build(gateways []gateway.Gateway) []GatewayDoc {
	docs := make([]GatewayDoc, 0, len(gateways))
	for _, gw := range gateways {
		docs = append(docs, buildDoc(gw))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs
}

func buildDoc(gw gateway.Gateway) GatewayDoc {
	doc := GatewayDoc{
		Name:             gw.Name,
		Href:             gw.Href,
		Comment:          gw.Comment,
		TrustAllCAs:      gw.TrustAllCAs,
		ExternalEndpoint: make([]EndpointDoc, 0, len(gw.Endpoints)),
	}
	for _, ep := range gw.Endpoints {
		doc.ExternalEndpoint = append(doc.ExternalEndpoint, EndpointDoc(ep))
	}

	switch {
	case gw.Profile != nil:
		doc.GatewayProfile = ProfileDoc(*gw.Profile)
	case gw.ProfileRef != "":
		doc.GatewayProfile = gw.ProfileRef
	}

	if gw.Sites != nil {
		sites := make([]SiteDoc, 0, len(gw.Sites))
		for _, s := range gw.Sites {
			sites = append(sites, SiteDoc{Name: s.Name, Href: s.Href, SiteElement: s.Networks})
		}
		doc.VPNSite = sites
	} else {
		doc.VPNSite = gw.SiteRefs
	}
	return doc
}

// MarshalYAML renders docs as the canonical facts document. Equal inputs
// produce byte-identical output.
func MarshalYAML(docs []GatewayDoc) ([]byte, error) {
	out, err := yaml.Marshal(document{ExternalGateway: docs})
	if err != nil {
		return nil, fmt.Errorf("rendering facts document: %w", err)
	}
	return out, nil
}

// Format is the single entry point: a name-keyed mapping, or the YAML
// document when asYAML is set. An empty gateway set formats as an empty
// mapping, or as an explicit empty list under the root key.
func Format(gateways []gateway.Gateway, asYAML bool) (Output, error) {
	docs := Build(gateways)

	if asYAML {
		data, err := MarshalYAML(docs)
		if err != nil {
			return Output{}, err
		}
		return Output{AsYAML: true, YAML: data}, nil
	}

	facts := make(map[string]GatewayDoc, len(docs))
	for _, doc := range docs {
		facts[doc.Name] = doc
	}
	return Output{Facts: facts}, nil
}
