// Package smc talks to the Stonesoft-compatible management center REST API.
// All access goes through a single Client that rate-limits per object type,
// caches list responses, and records every fetch in the audit trail.
package smc

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rampart-sec/rampart/internal/audit"
	"github.com/rampart-sec/rampart/internal/errs"
)

const (
	// DefaultAPIVersion is used when the server config does not pin one.
	DefaultAPIVersion = "7.0"

	// DefaultTimeout bounds a single round trip to the management center.
	DefaultTimeout = 30 * time.Second

	// DefaultRatePerSecond spaces requests per object type.
	DefaultRatePerSecond = 10

	apiKeyHeader = "X-SMC-API-Key"
)

// Options configures a Client. Zero values fall back to defaults; only
// BaseURL and APIKey are required.
type Options struct {
	BaseURL       string
	APIVersion    string
	APIKey        string
	Timeout       time.Duration
	TLS           *tls.Config
	RatePerSecond int
	CacheTTL      time.Duration
}

// Client is the gate for all management center traffic.
type Client struct {
	baseURL    string
	apiVersion string
	apiKey     string
	httpc      *http.Client
	limiter    *rateLimiter
	cache      *responseCache
	audit      *audit.Logger
	logger     zerolog.Logger
}

// NewClient builds a Client from the given options.
func NewClient(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errs.Validation("smc.client", "management center URL is not configured")
	}
	if opts.APIKey == "" {
		return nil, errs.Validation("smc.client", "management center API key is not configured")
	}
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = DefaultRatePerSecond
	}

	transport := http.DefaultTransport
	if opts.TLS != nil {
		transport = &http.Transport{TLSClientConfig: opts.TLS}
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiVersion: opts.APIVersion,
		apiKey:     opts.APIKey,
		httpc: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		limiter: newRateLimiter(opts.RatePerSecond),
		cache:   newResponseCache(opts.CacheTTL),
		logger:  logger.With().Str("component", "smc").Logger(),
	}, nil
}

// WithAudit attaches an audit logger so every fetch leaves a trail entry.
func (c *Client) WithAudit(a *audit.Logger) *Client {
	c.audit = a
	return c
}

// Fetch retrieves all elements of the given type, optionally narrowed by an
// exact-match name filter. An empty result is not an error. The slice keeps
// the service's native ordering.
func (c *Client) Fetch(ctx context.Context, objType ObjectType, filter string) ([]Element, error) {
	const op = "smc.fetch"

	if !objType.IsValid() {
		return nil, errs.Validation(op, fmt.Sprintf("unknown object type %q", string(objType)))
	}

	cacheKey := fmt.Sprintf("elements:%s:%s", objType, filter)
	if cached, ok := c.cache.get(cacheKey); ok {
		c.logger.Debug().Str("type", string(objType)).Str("filter", filter).Msg("cache hit")
		return cached, nil
	}

	c.limiter.wait(string(objType))

	body, err := c.do(ctx, op, c.elementsURL(objType, filter))
	if err != nil {
		c.logFetch(objType, filter, 0, err)
		return nil, err
	}

	elements, err := decodeElements(objType, body)
	if err != nil {
		err = errs.Connection(op, "malformed response from management center", err)
		c.logFetch(objType, filter, 0, err)
		return nil, err
	}

	c.cache.put(cacheKey, elements)
	c.logFetch(objType, filter, len(elements), nil)
	return elements, nil
}

// Ping verifies the management center is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	const op = "smc.ping"
	c.limiter.wait("api")
	_, err := c.do(ctx, op, fmt.Sprintf("%s/%s/api", c.baseURL, c.apiVersion))
	return err
}

// InvalidateCache drops cached responses for one object type, or all of
// them when objType is empty.
func (c *Client) InvalidateCache(objType ObjectType) {
	if objType == "" {
		c.cache.clear("")
		return
	}
	c.cache.clear(fmt.Sprintf("elements:%s:", objType))
}

func (c *Client) elementsURL(objType ObjectType, filter string) string {
	u := fmt.Sprintf("%s/%s/elements/%s", c.baseURL, c.apiVersion, objType)
	if filter != "" {
		q := url.Values{}
		q.Set("filter", filter)
		q.Set("exact_match", "true")
		u = u + "?" + q.Encode()
	}
	return u
}

// do executes one GET against the management center and classifies every
// failure into the error taxonomy.
func (c *Client) do(ctx context.Context, op, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Connection(op, "building request", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errs.Connection(op, "management center unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Connection(op, "reading response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errs.Auth(op, fmt.Sprintf("management center rejected API key (status %d)", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, errs.Connection(op, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, snippet(body)), nil)
	}
	return body, nil
}

func (c *Client) logFetch(objType ObjectType, filter string, count int, err error) {
	if err != nil {
		c.logger.Warn().
			Str("type", string(objType)).
			Str("filter", filter).
			Err(err).
			Msg("fetch failed")
		return
	}
	c.logger.Debug().
		Str("type", string(objType)).
		Str("filter", filter).
		Int("count", count).
		Msg("fetched elements")
	if c.audit != nil {
		detail := map[string]any{"type": string(objType), "filter": filter, "count": count}
		if auditErr := c.audit.Record(audit.EventAPIFetch, "smc", "", detail); auditErr != nil {
			c.logger.Warn().Err(auditErr).Msg("audit write failed")
		}
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// --- rate limiting ---

// rateLimiter spaces requests so each object type sees at most ratePerSecond
// calls per second. The management center throttles aggressive clients, so
// we keep a floor between calls rather than bursting.
type rateLimiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastCall    map[string]time.Time
}

func newRateLimiter(ratePerSecond int) *rateLimiter {
	return &rateLimiter{
		minInterval: time.Second / time.Duration(ratePerSecond),
		lastCall:    make(map[string]time.Time),
	}
}

func (r *rateLimiter) wait(key string) {
	r.mu.Lock()
	last, seen := r.lastCall[key]
	now := time.Now()
	if seen {
		if elapsed := now.Sub(last); elapsed < r.minInterval {
			sleep := r.minInterval - elapsed
			r.mu.Unlock()
			time.Sleep(sleep)
			r.mu.Lock()
			now = time.Now()
		}
	}
	r.lastCall[key] = now
	r.mu.Unlock()
}

// --- response caching ---

type cacheEntry struct {
	elements  []Element
	fetchedAt time.Time
}

// responseCache keeps list responses for a short TTL so one pipeline run
// does not fetch the same profile or site list twice. A TTL of zero
// disables caching entirely.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

func (rc *responseCache) get(key string) ([]Element, bool) {
	if rc.ttl <= 0 {
		return nil, false
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	entry, ok := rc.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.fetchedAt) > rc.ttl {
		delete(rc.entries, key)
		return nil, false
	}
	return entry.elements, true
}

func (rc *responseCache) put(key string, elements []Element) {
	if rc.ttl <= 0 {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries[key] = &cacheEntry{elements: elements, fetchedAt: time.Now()}
}

func (rc *responseCache) clear(prefix string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if prefix == "" {
		rc.entries = make(map[string]*cacheEntry)
		return
	}
	for key := range rc.entries {
		if strings.HasPrefix(key, prefix) {
			delete(rc.entries, key)
		}
	}
}
