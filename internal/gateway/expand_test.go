package gateway

import (
	"context"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rampart-sec/rampart/internal/errs"
)

func resolveOne(t *testing.T, client interface {
	Resolve(ctx context.Context, filter string) ([]Gateway, error)
}, name string) Gateway {
	t.Helper()
	gateways, err := client.Resolve(context.Background(), name)
	if err != nil {
		t.Fatalf("Resolve(%s): %v", name, err)
	}
	if len(gateways) != 1 {
		t.Fatalf("Resolve(%s): expected 1 gateway, got %d", name, len(gateways))
	}
	return gateways[0]
}

func TestParseRelations(t *testing.T) {
	relations, err := ParseRelations([]string{"gateway_profile", "vpn_site"})
	if err != nil {
		t.Fatalf("ParseRelations: %v", err)
	}
	want := []Relation{RelationGatewayProfile, RelationVPNSite}
	if !reflect.DeepEqual(relations, want) {
		t.Errorf("expected %v, got %v", want, relations)
	}
}

func TestParseRelationsDeduplicates(t *testing.T) {
	relations, err := ParseRelations([]string{"vpn_site", "gateway_profile", "vpn_site"})
	if err != nil {
		t.Fatalf("ParseRelations: %v", err)
	}
	want := []Relation{RelationVPNSite, RelationGatewayProfile}
	if !reflect.DeepEqual(relations, want) {
		t.Errorf("expected %v, got %v", want, relations)
	}
}

func TestParseRelationsRejectsUnknown(t *testing.T) {
	_, err := ParseRelations([]string{"gateway_profile", "firewall_rules"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestExpandRejectsUnknownRelationBeforeNetwork(t *testing.T) {
	fake, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())
	gw := resolveOne(t, r, "myextgw")

	fake.resetCalls()
	e := NewExpander(client, zerolog.Nop())
	_, err := e.Expand(context.Background(), gw, []Relation{Relation("bogus")})
	if !errs.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fake.callCount("gateway_profile") != 0 || fake.callCount("vpn_site") != 0 {
		t.Error("expected no network traffic for an invalid request")
	}
}

func TestExpandProfile(t *testing.T) {
	_, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())
	e := NewExpander(client, zerolog.Nop())
	gw := resolveOne(t, r, "myextgw")

	out, err := e.Expand(context.Background(), gw, []Relation{RelationGatewayProfile})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	if out.Profile == nil {
		t.Fatal("expected profile to be inlined")
	}
	if out.Profile.Name != "vpn-a" {
		t.Errorf("expected vpn-a, got %s", out.Profile.Name)
	}
	// Only enabled capability flags survive, sorted
	want := []string{"aes256_for_ike", "sha2_for_ike"}
	if !reflect.DeepEqual(out.Profile.Capabilities, want) {
		t.Errorf("expected %v, got %v", want, out.Profile.Capabilities)
	}
	// Relationships that were not requested stay bare
	if out.Sites != nil {
		t.Error("expected sites to stay bare references")
	}
}

func TestExpandSitesPreservesReferenceOrder(t *testing.T) {
	_, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())
	e := NewExpander(client, zerolog.Nop())
	gw := resolveOne(t, r, "myextgw")

	out, err := e.Expand(context.Background(), gw, []Relation{RelationVPNSite})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	if len(out.Sites) != 2 {
		t.Fatalf("expected 2 sites, got %d", len(out.Sites))
	}
	if out.Sites[0].Name != "hq-site" || out.Sites[1].Name != "branch-site" {
		t.Errorf("unexpected site order: %s, %s", out.Sites[0].Name, out.Sites[1].Name)
	}
	if len(out.Sites[0].Networks) != 2 {
		t.Errorf("expected 2 networks for hq-site, got %d", len(out.Sites[0].Networks))
	}
	if out.Sites[1].Networks == nil || len(out.Sites[1].Networks) != 0 {
		t.Errorf("expected empty non-nil networks for branch-site, got %v", out.Sites[1].Networks)
	}
	if out.Profile != nil {
		t.Error("expected profile to stay a bare reference")
	}
}

func TestExpandZeroReferencesInlinesEmptyCollection(t *testing.T) {
	fake, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())
	e := NewExpander(client, zerolog.Nop())
	gw := resolveOne(t, r, "extgw3")

	fake.resetCalls()
	out, err := e.Expand(context.Background(), gw, []Relation{RelationVPNSite})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	if out.Sites == nil {
		t.Fatal("expected an inlined empty collection, got bare references")
	}
	if len(out.Sites) != 0 {
		t.Errorf("expected 0 sites, got %d", len(out.Sites))
	}
	if fake.callCount("vpn_site") != 0 {
		t.Error("expected no site fetch for a gateway with zero references")
	}
}

func TestExpandMissingProfileRefStaysBare(t *testing.T) {
	fake, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())
	e := NewExpander(client, zerolog.Nop())
	gw := resolveOne(t, r, "branchgw")

	fake.resetCalls()
	out, err := e.Expand(context.Background(), gw, []Relation{RelationGatewayProfile})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if out.Profile != nil {
		t.Error("expected no profile for a gateway without a reference")
	}
	if fake.callCount("gateway_profile") != 0 {
		t.Error("expected no profile fetch without a reference")
	}
}

func TestExpandSkipsDanglingSiteRef(t *testing.T) {
	_, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())
	e := NewExpander(client, zerolog.Nop())
	gw := resolveOne(t, r, "branchgw")

	out, err := e.Expand(context.Background(), gw, []Relation{RelationVPNSite})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(out.Sites) != 1 {
		t.Fatalf("expected 1 resolvable site, got %d", len(out.Sites))
	}
	if out.Sites[0].Name != "hq-site" {
		t.Errorf("expected hq-site, got %s", out.Sites[0].Name)
	}
}

func TestExpandNeverMutatesInput(t *testing.T) {
	_, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())
	e := NewExpander(client, zerolog.Nop())
	gw := resolveOne(t, r, "myextgw")

	_, err := e.Expand(context.Background(), gw, AllRelations())
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	if gw.Profile != nil {
		t.Error("input gateway profile was mutated")
	}
	if gw.Sites != nil {
		t.Error("input gateway sites were mutated")
	}
	if len(gw.SiteRefs) != 2 {
		t.Errorf("input site refs changed: %v", gw.SiteRefs)
	}
}

func TestExpandFailureYieldsNoPartialResult(t *testing.T) {
	fake, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())
	e := NewExpander(client, zerolog.Nop())
	gw := resolveOne(t, r, "myextgw")

	fake.failOn("vpn_site")
	out, err := e.Expand(context.Background(), gw, []Relation{RelationGatewayProfile, RelationVPNSite})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.IsConnection(err) {
		t.Errorf("expected connection error, got %v", err)
	}
	if out.Name != "" || out.Profile != nil {
		t.Error("expected zero gateway on failure, not a partial expansion")
	}
}

func TestCloneIsDeep(t *testing.T) {
	_, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())
	e := NewExpander(client, zerolog.Nop())
	gw := resolveOne(t, r, "myextgw")

	expanded, err := e.Expand(context.Background(), gw, AllRelations())
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	clone := expanded.Clone()
	clone.Endpoints[0].Name = "changed"
	clone.SiteRefs[0] = "changed"
	clone.Profile.Capabilities[0] = "changed"
	clone.Sites[0].Networks[0] = "changed"

	if expanded.Endpoints[0].Name == "changed" {
		t.Error("endpoint slice is shared")
	}
	if expanded.SiteRefs[0] == "changed" {
		t.Error("site ref slice is shared")
	}
	if expanded.Profile.Capabilities[0] == "changed" {
		t.Error("profile capabilities are shared")
	}
	if expanded.Sites[0].Networks[0] == "changed" {
		t.Error("site networks are shared")
	}
}
