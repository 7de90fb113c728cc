package skills

import (
	"context"
	"strings"
	"sync"

	"github.com/nexuscore/agentrt/internal/bus"
	"github.com/nexuscore/agentrt/internal/ssrf"
	"github.com/nexuscore/agentrt/pkg/models"
)

// MinSemanticSimilarity is the cosine-similarity floor for a semantic match
// to be returned.
const MinSemanticSimilarity = 0.5

// MaxOnChainRecords bounds how many on-chain skill records a lookup reads.
const MaxOnChainRecords = 50

// Embedder embeds free text into a vector. Absence of an Embedder (nil)
// means embeddings are unavailable and semantic search is skipped.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OnChainRecord is one record read from the on-chain skill registry.
type OnChainRecord struct {
	Name           string
	Description    string
	CommunityStake uint64
	InstallContent string
}

// OnChainRegistry reads skill records from an external on-chain collaborator.
type OnChainRegistry interface {
	ListRecords(ctx context.Context, limit int) ([]OnChainRecord, error)
}

// RemoteLookup performs the single remote HTTP query (through Network
// Safety) against a skills endpoint.
type RemoteLookup interface {
	Query(ctx context.Context, fetcher *ssrf.Limiter, query string) (*Entry, error)
}

// Loader installs the content of a non-local match and returns the
// installed Entry, ready to be indexed for subsequent lookups.
type Loader interface {
	Install(ctx context.Context, entry Entry) (Entry, error)
}

// Registry indexes skills by name and implements the fixed search chain.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Entry
	embedder Embedder
	onChain  OnChainRegistry
	remote   RemoteLookup
	loader   Loader
	fetcher  *ssrf.Limiter
	bus      *bus.Bus
	// minCommunityStake filters on-chain records.
	minCommunityStake uint64
}

// Config configures a Registry. Embedder, OnChain, Remote, and Loader may
// all be nil; absence degrades that search stage rather than erroring.
type Config struct {
	Embedder          Embedder
	OnChain           OnChainRegistry
	Remote            RemoteLookup
	Loader            Loader
	Fetcher           *ssrf.Limiter
	Bus               *bus.Bus
	MinCommunityStake uint64
}

// New constructs a Registry seeded with entries (e.g. bundled/local skills
// discovered at startup).
func New(cfg Config, seed []Entry) *Registry {
	r := &Registry{
		byName:            make(map[string]Entry, len(seed)),
		embedder:          cfg.Embedder,
		onChain:           cfg.OnChain,
		remote:            cfg.Remote,
		loader:            cfg.Loader,
		fetcher:           cfg.Fetcher,
		bus:               cfg.Bus,
		minCommunityStake: cfg.MinCommunityStake,
	}
	for _, e := range seed {
		e.Source = SourceLocal
		r.byName[e.Name] = e
	}
	return r
}

// Index registers or replaces an entry in the local index.
func (r *Registry) Index(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[e.Name] = e
}

// Get returns the locally indexed entry for name, if any.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

func (r *Registry) snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.byName))
	for _, e := range r.byName {
		out = append(out, e)
	}
	return out
}

// Search runs the fixed four-stage search order and returns the first
// qualifying match, or ok=false if nothing matched at any stage.
func (r *Registry) Search(ctx context.Context, query string) (Match, bool) {
	if m, ok := r.searchSemantic(ctx, query); ok {
		return m, true
	}
	if m, ok := r.searchKeyword(query); ok {
		return m, true
	}
	if m, ok := r.searchOnChain(ctx, query); ok {
		return m, true
	}
	if m, ok := r.searchRemote(ctx, query); ok {
		return m, true
	}
	return Match{}, false
}

func (r *Registry) searchSemantic(ctx context.Context, query string) (Match, bool) {
	if r.embedder == nil {
		return Match{}, false
	}
	qvec, err := r.embedder.Embed(ctx, query)
	if err != nil || len(qvec) == 0 {
		return Match{}, false
	}
	var best Match
	found := false
	for _, e := range r.snapshot() {
		if len(e.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(qvec, e.Embedding)
		if score >= MinSemanticSimilarity && (!found || score > best.Score) {
			best = Match{Entry: e, Score: score}
			found = true
		}
	}
	return best, found
}

// searchKeyword scores entries by simple token-overlap across name and
// description; the best positive-scoring entry wins.
func (r *Registry) searchKeyword(query string) (Match, bool) {
	qtokens := tokenize(query)
	if len(qtokens) == 0 {
		return Match{}, false
	}
	var best Match
	found := false
	for _, e := range r.snapshot() {
		score := keywordScore(qtokens, e.Name, e.Description)
		if score > 0 && (!found || score > best.Score) {
			best = Match{Entry: e, Score: score}
			found = true
		}
	}
	return best, found
}

func (r *Registry) searchOnChain(ctx context.Context, query string) (Match, bool) {
	if r.onChain == nil {
		return Match{}, false
	}
	records, err := r.onChain.ListRecords(ctx, MaxOnChainRecords)
	if err != nil {
		return Match{}, false
	}
	qtokens := tokenize(query)
	for _, rec := range records {
		if rec.CommunityStake < r.minCommunityStake {
			continue
		}
		if containsAny(strings.ToLower(rec.Name), qtokens) || containsAny(strings.ToLower(rec.Description), qtokens) {
			return Match{Entry: Entry{
				Name:           rec.Name,
				Description:    rec.Description,
				Source:         SourceOnChain,
				InstallContent: rec.InstallContent,
				Installable:    rec.InstallContent != "",
			}, Score: 1}, true
		}
	}
	return Match{}, false
}

func (r *Registry) searchRemote(ctx context.Context, query string) (Match, bool) {
	if r.remote == nil {
		return Match{}, false
	}
	entry, err := r.remote.Query(ctx, r.fetcher, query)
	if err != nil || entry == nil {
		return Match{}, false
	}
	entry.Source = SourceRemote
	return Match{Entry: *entry, Score: 1}, true
}

// FindAndLoad combines Search with optional bounded auto-install: a match
// that is not local and carries installable content is installed and
// indexed, and a skill:executed event is published on success. At most one
// install happens per call.
func (r *Registry) FindAndLoad(ctx context.Context, query string) (Entry, bool) {
	m, ok := r.Search(ctx, query)
	if !ok {
		return Entry{}, false
	}
	if m.Entry.Source == SourceLocal || !m.Entry.Installable || r.loader == nil {
		return m.Entry, true
	}
	installed, err := r.InstallAndIndex(ctx, m.Entry)
	if err != nil {
		return m.Entry, true
	}
	return installed, true
}

// InstallAndIndex runs entry through the loader's audit-and-install path
// (when one is configured) and indexes the result as a local skill,
// publishing skill:executed on success. Every skill acquisition — search
// auto-install and the directory watcher alike — goes through here; there
// is no side door into the index for installable content.
func (r *Registry) InstallAndIndex(ctx context.Context, e Entry) (Entry, error) {
	if r.loader != nil && e.Installable {
		installed, err := r.loader.Install(ctx, e)
		if err != nil {
			return Entry{}, err
		}
		e = installed
	}
	e.Source = SourceLocal
	r.Index(e)
	if r.bus != nil {
		r.bus.Publish(models.Event{Topic: models.TopicSkillExecuted, Payload: e.Name})
	}
	return e, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrtApprox(normA) * sqrtApprox(normB))
}

func sqrtApprox(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z = (z + x/z) / 2
	}
	return z
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?:;\"'()")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func keywordScore(qtokens []string, name, description string) float64 {
	hay := strings.ToLower(name + " " + description)
	score := 0.0
	for _, t := range qtokens {
		if strings.Contains(hay, t) {
			score++
		}
	}
	return score
}

func containsAny(haystack string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}
