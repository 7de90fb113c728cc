package ssrf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/nexuscore/agentrt/internal/rterr"
	"golang.org/x/time/rate"
)

// allowedSchemes is the closed set of URL schemes the fetch/navigate paths
// accept. Anything else is rejected before DNS resolution even runs.
var allowedSchemes = map[string]bool{"http": true, "https": true}

const (
	defaultPerHostRPS    = 2
	defaultPerHostBurst  = 4
	defaultMaxBodyBytes  = 5 << 20 // 5 MiB
	defaultFetchTimeout  = 10 * time.Second

	// fetchUserAgent is fixed and non-identifying: it names no runtime,
	// version, or operator.
	fetchUserAgent = "Mozilla/5.0 (compatible; fetch)"
)

// Limiter enforces the network safety contract in front of
// every outbound fetch and browser navigation: scheme allow-list, hostname
// validation, and a per-host token bucket shared across all callers.
type Limiter struct {
	mu       sync.Mutex
	perHost  map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	client   *http.Client
	maxBytes int64
}

// NewLimiter builds a Limiter with its defaults: 2 req/s and burst 4
// per host, 5 MiB response cap, 10s fetch timeout.
func NewLimiter() *Limiter {
	return NewLimiterWith(0, 0, 0, 0)
}

// NewLimiterWith builds a Limiter with explicit policy knobs; zero values
// fall back to the defaults NewLimiter documents.
func NewLimiterWith(rps float64, burst int, maxBytes int64, timeout time.Duration) *Limiter {
	if rps <= 0 {
		rps = defaultPerHostRPS
	}
	if burst <= 0 {
		burst = defaultPerHostBurst
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Limiter{
		perHost:  make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: timeout},
	}
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.perHost[host]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.perHost[host] = lim
	}
	return lim
}

// ValidateURL runs every pre-flight check an outbound request must pass:
// scheme allow-list, hostname denylist/suffix check, and DNS-resolved
// private-address blocking. It does not consume rate-limit budget — callers
// that only need the validation (e.g. browser navigation) use this alone.
func ValidateURL(ctx context.Context, rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, rterr.Wrap(rterr.KindInvalidParams, "malformed URL", err)
	}
	if !allowedSchemes[parsed.Scheme] {
		return nil, rterr.New(rterr.KindSchemeForbidden, fmt.Sprintf("scheme not allowed: %s", parsed.Scheme))
	}
	if parsed.Hostname() == "" {
		return nil, rterr.New(rterr.KindInvalidParams, "URL has no hostname")
	}
	if err := ValidatePublicHostname(ctx, parsed.Hostname()); err != nil {
		return nil, err
	}
	return parsed, nil
}

// IsBrowserNavigationAllowed is the predicate the sub-agent browser tool
// calls before every navigation: same validation as SafeFetch, no rate
// limit and no body fetch.
func (l *Limiter) IsBrowserNavigationAllowed(ctx context.Context, rawURL string) error {
	_, err := ValidateURL(ctx, rawURL)
	return err
}

// FetchResult is a successful SafeFetch outcome: the HTTP status and the
// body, truncated at the size cap. Headers are never surfaced.
type FetchResult struct {
	Status    int
	Body      []byte
	Truncated bool
}

// SafeFetch performs a validated, rate-limited, size-capped GET. It is the
// only path permitted to reach an external host from inside the runtime.
// A response larger than the cap is not an error: the body is truncated at
// the cap and Truncated is set.
func (l *Limiter) SafeFetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	parsed, err := ValidateURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	limiter := l.limiterFor(parsed.Hostname())
	if !limiter.Allow() {
		return nil, rterr.New(rterr.KindRateLimited, fmt.Sprintf("rate limit exceeded for host: %s", parsed.Hostname()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, rterr.Wrap(rterr.KindInvalidParams, "failed to build request", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, rterr.Wrap(rterr.KindTimeout, "fetch failed", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, l.maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, rterr.Wrap(rterr.KindInvalidParams, "failed to read response body", err)
	}
	result := &FetchResult{Status: resp.StatusCode, Body: body}
	if int64(len(body)) > l.maxBytes {
		result.Body = body[:l.maxBytes]
		result.Truncated = true
	}
	return result, nil
}
