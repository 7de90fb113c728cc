package ssrf

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/nexuscore/agentrt/internal/rterr"
)

// blockedHostnames are always rejected regardless of DNS resolution.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// dangerousSuffixes identify internal/local resources by name alone.
var dangerousSuffixes = []string{".localhost", ".local", ".internal"}

// AddBlockedHostnames extends the static denylist with operator-configured
// hostnames. Call once at startup, before any fetch runs.
func AddBlockedHostnames(names ...string) {
	for _, n := range names {
		if normalized := normalizeForBlockCheck(n); normalized != "" {
			blockedHostnames[normalized] = true
		}
	}
}

// confusables folds a small set of Unicode homoglyphs to their ASCII
// look-alike before hostname comparison. This is the uniform policy picked
// for the "homoglyph folding" open question: applied here and
// nowhere else besides the approval manager's address comparison.
var confusables = map[rune]rune{
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'х': 'x', // Cyrillic look-alikes
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z', 'Η': 'H', // Greek look-alikes
}

// FoldConfusables normalizes a small, fixed set of homoglyphs that are
// commonly used to disguise internal-looking hostnames.
func FoldConfusables(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if folded, ok := confusables[r]; ok {
			b.WriteRune(folded)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func normalizeForBlockCheck(hostname string) string {
	return normalizeHostname(FoldConfusables(hostname))
}

// IsBlockedHostname reports whether a hostname is on the static denylist or
// matches a dangerous suffix.
func IsBlockedHostname(hostname string) bool {
	normalized := normalizeForBlockCheck(hostname)
	if normalized == "" {
		return false
	}
	if blockedHostnames[normalized] {
		return true
	}
	for _, suffix := range dangerousSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS lookups so tests can supply deterministic results.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

var defaultResolver Resolver = net.DefaultResolver

// ValidatePublicHostname validates that a hostname is safe for external
// requests: not blocked, not itself a private-looking literal, and every
// DNS-resolved address public. This is the core of the
// "private-address-blocking" testable property: every resolved
// address must be public or the whole hostname is rejected.
func ValidatePublicHostname(ctx context.Context, hostname string) error {
	return validatePublicHostname(ctx, hostname, defaultResolver)
}

func validatePublicHostname(ctx context.Context, hostname string, resolver Resolver) error {
	normalized := normalizeForBlockCheck(hostname)
	if normalized == "" {
		return rterr.New(rterr.KindInvalidParams, "empty hostname")
	}

	if IsBlockedHostname(normalized) {
		return rterr.New(rterr.KindHostDenylisted, fmt.Sprintf("blocked hostname: %s", hostname))
	}

	if IsPrivateIPAddress(normalized) {
		return rterr.New(rterr.KindHostPrivate, "private/internal IP literal")
	}

	addrs, err := resolver.LookupIPAddr(ctx, normalized)
	if err != nil {
		return rterr.Wrap(rterr.KindInvalidParams, fmt.Sprintf("unable to resolve hostname: %s", hostname), err)
	}
	if len(addrs) == 0 {
		return rterr.New(rterr.KindInvalidParams, fmt.Sprintf("unable to resolve hostname: %s", hostname))
	}

	for _, addr := range addrs {
		if IsPrivateIPAddress(addr.IP.String()) {
			return rterr.New(rterr.KindHostPrivate, "resolves to private/internal IP address")
		}
	}
	return nil
}
