package smc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rampart-sec/rampart/internal/errs"
)

func newTestClient(t *testing.T, handler http.Handler, ttl time.Duration) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Options{
		BaseURL:       srv.URL,
		APIVersion:    "7.0",
		APIKey:        "test-key",
		RatePerSecond: 1000,
		CacheTTL:      ttl,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, srv
}

func TestFetchEmptyResultIsNotError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":[]}`))
	}), 0)

	elements, err := client.Fetch(context.Background(), TypeExternalGateway, "nonexistent")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(elements) != 0 {
		t.Errorf("expected empty result, got %d elements", len(elements))
	}
}

func TestFetchDecodesElements(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":[
			{"name":"extgw3","href":"https://smc/elements/external_gateway/3","gateway_profile":"https://smc/elements/gateway_profile/7"},
			{"name":"myextgw","href":"https://smc/elements/external_gateway/1"}
		]}`))
	}), 0)

	elements, err := client.Fetch(context.Background(), TypeExternalGateway, "")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(elements))
	}

	// Service ordering is preserved
	if elements[0].Name != "extgw3" || elements[1].Name != "myextgw" {
		t.Errorf("unexpected order: %s, %s", elements[0].Name, elements[1].Name)
	}
	if elements[0].Href != "https://smc/elements/external_gateway/3" {
		t.Errorf("unexpected href: %s", elements[0].Href)
	}
	if elements[0].Type != TypeExternalGateway {
		t.Errorf("unexpected type: %s", elements[0].Type)
	}
	if len(elements[0].Data) == 0 {
		t.Error("expected raw data to be retained")
	}
}

func TestFetchSendsFilterAndKey(t *testing.T) {
	var gotFilter, gotExact, gotKey string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("filter")
		gotExact = r.URL.Query().Get("exact_match")
		gotKey = r.Header.Get("X-SMC-API-Key")
		w.Write([]byte(`{"result":[]}`))
	}), 0)

	if _, err := client.Fetch(context.Background(), TypeVPNSite, "branch-site"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotFilter != "branch-site" {
		t.Errorf("expected filter=branch-site, got %q", gotFilter)
	}
	if gotExact != "true" {
		t.Errorf("expected exact_match=true, got %q", gotExact)
	}
	if gotKey != "test-key" {
		t.Errorf("expected API key header, got %q", gotKey)
	}
}

func TestFetchAuthError(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}), 0)

		_, err := client.Fetch(context.Background(), TypeExternalGateway, "")
		if err == nil {
			t.Fatalf("status %d: expected error", status)
		}
		if !errs.IsAuth(err) {
			t.Errorf("status %d: expected auth error, got %v", status, err)
		}
	}
}

func TestFetchConnectionErrorOnBadStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("backend exploded"))
	}), 0)

	_, err := client.Fetch(context.Background(), TypeExternalGateway, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.IsConnection(err) {
		t.Errorf("expected connection error, got %v", err)
	}
}

func TestFetchConnectionErrorOnUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(Options{BaseURL: url, APIKey: "k", RatePerSecond: 1000}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.Fetch(context.Background(), TypeExternalGateway, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.IsConnection(err) {
		t.Errorf("expected connection error, got %v", err)
	}
}

func TestFetchRejectsUnknownTypeBeforeNetwork(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"result":[]}`))
	}), 0)

	_, err := client.Fetch(context.Background(), ObjectType("firewall_cluster"), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no requests, got %d", calls.Load())
	}
}

func TestFetchCachesResponses(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"result":[{"name":"gw1","href":"h1"}]}`))
	}), time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := client.Fetch(ctx, TypeGatewayProfile, "gw1"); err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 request with warm cache, got %d", calls.Load())
	}

	// Different filter misses the cache
	if _, err := client.Fetch(ctx, TypeGatewayProfile, "gw2"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 requests after filter change, got %d", calls.Load())
	}

	// Invalidation forces a refetch
	client.InvalidateCache(TypeGatewayProfile)
	if _, err := client.Fetch(ctx, TypeGatewayProfile, "gw1"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 requests after invalidation, got %d", calls.Load())
	}
}

func TestFetchErrorsAreNotCached(t *testing.T) {
	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}), time.Minute)

	ctx := context.Background()
	client.Fetch(ctx, TypeExternalGateway, "")
	client.Fetch(ctx, TypeExternalGateway, "")
	if calls.Load() != 2 {
		t.Errorf("expected errors to bypass cache, got %d calls", calls.Load())
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Options{APIKey: "k"}, zerolog.Nop()); !errs.IsValidation(err) {
		t.Errorf("expected validation error for missing URL, got %v", err)
	}
	if _, err := NewClient(Options{BaseURL: "https://smc:8082"}, zerolog.Nop()); !errs.IsValidation(err) {
		t.Errorf("expected validation error for missing key, got %v", err)
	}
}

func TestParseObjectType(t *testing.T) {
	for _, valid := range []string{"external_gateway", "gateway_profile", "vpn_site"} {
		if _, err := ParseObjectType(valid); err != nil {
			t.Errorf("ParseObjectType(%q): %v", valid, err)
		}
	}
	if _, err := ParseObjectType("router"); !errs.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRateLimiterSpacesCalls(t *testing.T) {
	rl := newRateLimiter(100) // 10ms floor

	start := time.Now()
	rl.wait("external_gateway")
	rl.wait("external_gateway")
	rl.wait("external_gateway")
	elapsed := time.Since(start)

	if elapsed < 20*time.Millisecond {
		t.Errorf("expected at least 20ms for 3 calls, got %v", elapsed)
	}
}

func TestRateLimiterIndependentKeys(t *testing.T) {
	rl := newRateLimiter(1) // 1s floor would be visible if keys shared state

	start := time.Now()
	rl.wait("external_gateway")
	rl.wait("gateway_profile")
	rl.wait("vpn_site")
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Errorf("distinct keys should not wait on each other, took %v", elapsed)
	}
}
