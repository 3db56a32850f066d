package gateway

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rampart-sec/rampart/internal/errs"
)

func TestResolveAllGateways(t *testing.T) {
	_, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())

	gateways, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(gateways) != 3 {
		t.Fatalf("expected 3 gateways, got %d", len(gateways))
	}

	// Service ordering is preserved
	names := []string{gateways[0].Name, gateways[1].Name, gateways[2].Name}
	want := []string{"myextgw", "extgw3", "branchgw"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestResolveFilterMatchesOne(t *testing.T) {
	_, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())

	gateways, err := r.Resolve(context.Background(), "myextgw")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(gateways) != 1 {
		t.Fatalf("expected 1 gateway, got %d", len(gateways))
	}

	gw := gateways[0]
	if gw.Name != "myextgw" {
		t.Errorf("expected myextgw, got %s", gw.Name)
	}
	if gw.Comment != "primary partner gateway" {
		t.Errorf("unexpected comment: %q", gw.Comment)
	}
	if !gw.TrustAllCAs {
		t.Error("expected trust_all_cas to decode")
	}
	if gw.ProfileRef != hrefProfile7 {
		t.Errorf("unexpected profile ref: %s", gw.ProfileRef)
	}
	if len(gw.SiteRefs) != 2 {
		t.Errorf("expected 2 site refs, got %d", len(gw.SiteRefs))
	}
	if len(gw.Endpoints) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(gw.Endpoints))
	}
	ep := gw.Endpoints[0]
	if ep.Name != "endpoint1" || ep.Address != "203.0.113.10" || !ep.Enabled {
		t.Errorf("unexpected endpoint: %+v", ep)
	}
}

func TestResolveNoMatchIsSuccess(t *testing.T) {
	_, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())

	gateways, err := r.Resolve(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("expected no error for missing gateway, got %v", err)
	}
	if len(gateways) != 0 {
		t.Errorf("expected empty result, got %d", len(gateways))
	}
}

func TestResolveNormalizesReferences(t *testing.T) {
	_, client := newFakeSMC(t)
	r := NewResolver(client, zerolog.Nop())

	gateways, err := r.Resolve(context.Background(), "extgw3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(gateways) != 1 {
		t.Fatalf("expected 1 gateway, got %d", len(gateways))
	}

	gw := gateways[0]
	if gw.SiteRefs == nil {
		t.Error("expected site refs to be non-nil")
	}
	if len(gw.SiteRefs) != 0 {
		t.Errorf("expected no site refs, got %d", len(gw.SiteRefs))
	}
	// Unexpanded relationships stay bare
	if gw.Profile != nil {
		t.Error("expected profile to stay a bare reference")
	}
	if gw.Sites != nil {
		t.Error("expected sites to stay bare references")
	}
}

func TestResolvePropagatesFetchError(t *testing.T) {
	fake, client := newFakeSMC(t)
	fake.failOn("external_gateway")
	r := NewResolver(client, zerolog.Nop())

	_, err := r.Resolve(context.Background(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.IsConnection(err) {
		t.Errorf("expected connection error, got %v", err)
	}
}
