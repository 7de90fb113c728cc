package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/nexuscore/agentrt/internal/ssrf"
)

// HTTPLookup is the remote search stage: one GET against a skills
// endpoint, through network safety, returning the first result if any.
type HTTPLookup struct {
	Endpoint string

	// fetch overrides the network path in tests; nil uses the fetcher
	// passed in by the registry.
	fetch func(ctx context.Context, rawURL string) (*ssrf.FetchResult, error)
}

type remoteSkill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

func (h *HTTPLookup) Query(ctx context.Context, fetcher *ssrf.Limiter, query string) (*Entry, error) {
	fetch := h.fetch
	if fetch == nil {
		if fetcher == nil {
			return nil, fmt.Errorf("skills: remote lookup has no fetcher")
		}
		fetch = fetcher.SafeFetch
	}
	res, err := fetch(ctx, h.Endpoint+"?q="+url.QueryEscape(query))
	if err != nil {
		return nil, err
	}
	if res.Status != 200 {
		return nil, fmt.Errorf("skills: remote lookup returned status %d", res.Status)
	}
	var payload struct {
		Skills []remoteSkill `json:"skills"`
	}
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return nil, fmt.Errorf("skills: remote lookup payload: %w", err)
	}
	if len(payload.Skills) == 0 {
		return nil, nil
	}
	first := payload.Skills[0]
	return &Entry{
		Name:           first.Name,
		Description:    first.Description,
		InstallContent: first.Content,
		Installable:    first.Content != "",
	}, nil
}

// OnChainIndexer reads skill records from the on-chain registry through an
// indexer HTTP endpoint. The chain itself is an external collaborator; the
// indexer presents its records as JSON and this client re-applies the
// caller's limit regardless of what the endpoint returns.
type OnChainIndexer struct {
	Endpoint string
	Fetcher  *ssrf.Limiter

	fetch func(ctx context.Context, rawURL string) (*ssrf.FetchResult, error)
}

type indexedRecord struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Stake       uint64 `json:"stake"`
	Content     string `json:"content"`
}

func (c *OnChainIndexer) ListRecords(ctx context.Context, limit int) ([]OnChainRecord, error) {
	fetch := c.fetch
	if fetch == nil {
		if c.Fetcher == nil {
			return nil, fmt.Errorf("skills: on-chain indexer has no fetcher")
		}
		fetch = c.Fetcher.SafeFetch
	}
	res, err := fetch(ctx, fmt.Sprintf("%s?limit=%d", c.Endpoint, limit))
	if err != nil {
		return nil, err
	}
	if res.Status != 200 {
		return nil, fmt.Errorf("skills: indexer returned status %d", res.Status)
	}
	var payload struct {
		Records []indexedRecord `json:"records"`
	}
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return nil, fmt.Errorf("skills: indexer payload: %w", err)
	}
	records := payload.Records
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	out := make([]OnChainRecord, 0, len(records))
	for _, r := range records {
		out = append(out, OnChainRecord{
			Name:           r.Name,
			Description:    r.Description,
			CommunityStake: r.Stake,
			InstallContent: r.Content,
		})
	}
	return out, nil
}

// AuditLoader is the basic install audit every acquisition passes before
// indexing: content must be present, valid UTF-8, and within the size
// cap. It rejects rather than sanitizes.
type AuditLoader struct {
	// MaxContentBytes caps installable content. <= 0 means 64 KiB.
	MaxContentBytes int
}

func (l AuditLoader) Install(ctx context.Context, entry Entry) (Entry, error) {
	maxBytes := l.MaxContentBytes
	if maxBytes <= 0 {
		maxBytes = 64 << 10
	}
	if entry.Name == "" {
		return Entry{}, fmt.Errorf("skills: install rejected: no name")
	}
	if entry.InstallContent == "" {
		return Entry{}, fmt.Errorf("skills: install rejected: no content")
	}
	if len(entry.InstallContent) > maxBytes {
		return Entry{}, fmt.Errorf("skills: install rejected: content %d bytes exceeds cap %d", len(entry.InstallContent), maxBytes)
	}
	if !utf8.ValidString(entry.InstallContent) {
		return Entry{}, fmt.Errorf("skills: install rejected: content is not valid UTF-8")
	}
	return entry, nil
}
