// Package skills indexes skills by name and resolves a natural-language
// query through a fixed search order: local semantic search, keyword
// fallback, on-chain lookup, remote lookup. A match that is installable and
// passes a basic audit is auto-installed (bounded: one per query) and
// registered for subsequent lookups.
package skills

// SourceType names where a skill match came from.
type SourceType string

const (
	SourceLocal    SourceType = "local"
	SourceOnChain  SourceType = "on-chain"
	SourceRemote   SourceType = "remote"
)

// Entry is one indexed skill.
type Entry struct {
	Name        string
	Description string
	Embedding   []float32 // optional; nil means no cached embedding
	Source      SourceType
	// Installable content, present only on on-chain/remote matches that
	// have not yet been installed locally.
	InstallContent string
	Installable    bool
}

// Match is a search result paired with its score, for callers that want to
// compare across stages (e.g. deciding whether to fall through).
type Match struct {
	Entry Entry
	Score float64
}
