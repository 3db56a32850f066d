package smc

import (
	"encoding/json"
	"fmt"

	"github.com/rampart-sec/rampart/internal/errs"
)

// ObjectType tags the element kinds the management center serves. The set
// is closed: anything else is rejected before a request is built.
type ObjectType string

const (
	TypeExternalGateway ObjectType = "external_gateway"
	TypeGatewayProfile  ObjectType = "gateway_profile"
	TypeVPNSite         ObjectType = "vpn_site"
)

// AllObjectTypes returns the closed set of fetchable element kinds.
func AllObjectTypes() []ObjectType {
	return []ObjectType{TypeExternalGateway, TypeGatewayProfile, TypeVPNSite}
}

// IsValid reports whether the object type is in the closed set.
func (t ObjectType) IsValid() bool {
	switch t {
	case TypeExternalGateway, TypeGatewayProfile, TypeVPNSite:
		return true
	}
	return false
}

// ParseObjectType validates a user-supplied type tag.
func ParseObjectType(s string) (ObjectType, error) {
	t := ObjectType(s)
	if !t.IsValid() {
		return "", errs.Validation("smc.fetch", fmt.Sprintf("unknown object type %q (valid: external_gateway, gateway_profile, vpn_site)", s))
	}
	return t, nil
}

// Element is one raw object as the management center returned it. Data
// holds the undecoded JSON body; callers decode into their own models.
type Element struct {
	Type ObjectType      `json:"type"`
	Name string          `json:"name"`
	Href string          `json:"href,omitempty"`
	Data json.RawMessage `json:"data"`
}

// resultEnvelope is the service's list response shape.
type resultEnvelope struct {
	Result []json.RawMessage `json:"result"`
}

// elementHeader is the part of every element body we need for the envelope.
type elementHeader struct {
	Name string `json:"name"`
	Href string `json:"href"`
}

// decodeElements unwraps a list response into Elements. The service's
// native ordering is preserved.
func decodeElements(objType ObjectType, body []byte) ([]Element, error) {
	var env resultEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding %s list: %w", objType, err)
	}

	elements := make([]Element, 0, len(env.Result))
	for _, raw := range env.Result {
		var hdr elementHeader
		if err := json.Unmarshal(raw, &hdr); err != nil {
			return nil, fmt.Errorf("decoding %s element: %w", objType, err)
		}
		elements = append(elements, Element{
			Type: objType,
			Name: hdr.Name,
			Href: hdr.Href,
			Data: raw,
		})
	}
	return elements, nil
}
