package ssrf

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/nexuscore/agentrt/internal/rterr"
)

func TestNormalizeHostname(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"example.com", "example.com"},
		{"  example.com  ", "example.com"},
		{"EXAMPLE.COM", "example.com"},
		{"example.com.", "example.com"},
		{"[::1]", "::1"},
		{"[fe80::1]", "fe80::1"},
		{"  EXAMPLE.COM.  ", "example.com"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			result := normalizeHostname(tc.input)
			if result != tc.expected {
				t.Errorf("normalizeHostname(%q) = %q, expected %q", tc.input, result, tc.expected)
			}
		})
	}
}

func TestParseIPv4(t *testing.T) {
	tests := []struct {
		input    string
		expected [4]byte
		hasError bool
	}{
		{"192.168.1.1", [4]byte{192, 168, 1, 1}, false},
		{"0.0.0.0", [4]byte{0, 0, 0, 0}, false},
		{"255.255.255.255", [4]byte{255, 255, 255, 255}, false},
		{"256.1.1.1", [4]byte{}, true},
		{"1.1.1", [4]byte{}, true},
		{"1.1.1.1.1", [4]byte{}, true},
		{"a.b.c.d", [4]byte{}, true},
		{"-1.1.1.1", [4]byte{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			result, err := parseIPv4(tc.input)
			if tc.hasError {
				if err == nil {
					t.Errorf("parseIPv4(%q) expected error, got nil", tc.input)
				}
				return
			}
			if err != nil {
				t.Errorf("parseIPv4(%q) unexpected error: %v", tc.input, err)
			}
			if result != tc.expected {
				t.Errorf("parseIPv4(%q) = %v, expected %v", tc.input, result, tc.expected)
			}
		})
	}
}

func TestIsPrivateIPv4(t *testing.T) {
	tests := []struct {
		input    [4]byte
		expected bool
		name     string
	}{
		{[4]byte{10, 0, 0, 1}, true, "10.0.0.0/8"},
		{[4]byte{127, 0, 0, 1}, true, "loopback"},
		{[4]byte{169, 254, 0, 1}, true, "link-local"},
		{[4]byte{172, 16, 0, 1}, true, "172.16/12 start"},
		{[4]byte{172, 31, 255, 255}, true, "172.16/12 end"},
		{[4]byte{192, 168, 0, 1}, true, "192.168/16"},
		{[4]byte{100, 64, 0, 1}, true, "CGNAT start"},
		{[4]byte{100, 127, 255, 255}, true, "CGNAT end"},
		{[4]byte{8, 8, 8, 8}, false, "public"},
		{[4]byte{172, 15, 0, 1}, false, "just before 172.16/12"},
		{[4]byte{172, 32, 0, 1}, false, "just after 172.31/12"},
		{[4]byte{100, 63, 0, 1}, false, "just before CGNAT"},
		{[4]byte{100, 128, 0, 1}, false, "just after CGNAT"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsPrivateIPv4(tc.input); got != tc.expected {
				t.Errorf("IsPrivateIPv4(%v) = %v, expected %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestIsPrivateIPAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
		name     string
	}{
		{"127.0.0.1", true, "loopback"},
		{"10.0.0.1", true, "10.x private"},
		{"192.168.1.1", true, "192.168.x private"},
		{"8.8.8.8", false, "Google DNS"},
		{"1.1.1.1", false, "Cloudflare DNS"},
		{"::1", true, "IPv6 loopback"},
		{"::", true, "IPv6 unspecified"},
		{"[::1]", true, "bracketed IPv6 loopback"},
		{"fe80::1", true, "fe80 link-local"},
		{"fc00::1", true, "fc unique local"},
		{"fd00::1", true, "fd unique local"},
		{"2001:4860:4860::8888", false, "Google DNS IPv6"},
		{"::ffff:192.168.1.1", true, "IPv4-mapped private"},
		{"::ffff:8.8.8.8", false, "IPv4-mapped public"},
		{"", false, "empty string"},
		{"  192.168.1.1  ", true, "whitespace IPv4"},
		{"invalid", false, "invalid address"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsPrivateIPAddress(tc.input); got != tc.expected {
				t.Errorf("IsPrivateIPAddress(%q) = %v, expected %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestIsBlockedHostname(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
		name     string
	}{
		{"localhost", true, "localhost"},
		{"LOCALHOST", true, "localhost uppercase"},
		{"metadata.google.internal", true, "GCE metadata"},
		{"foo.localhost", true, ".localhost suffix"},
		{"bar.local", true, ".local suffix"},
		{"baz.internal", true, ".internal suffix"},
		{"example.com", false, "example.com"},
		{"localhostnot.com", false, "contains localhost but not suffix"},
		{"mylocal.com", false, "ends with local but not .local"},
		{"", false, "empty string"},
		// homoglyph folding: Cyrillic 'а' (U+0430) folds to ascii 'a'
		{"locаlhost", true, "cyrillic-a folded to localhost"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsBlockedHostname(tc.input); got != tc.expected {
				t.Errorf("IsBlockedHostname(%q) = %v, expected %v", tc.input, got, tc.expected)
			}
		})
	}
}

type fakeResolver struct {
	addrs map[string][]net.IPAddr
	err   error
}

func (f fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.addrs[host], nil
}

func TestValidatePublicHostname(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked hostname short-circuits before DNS", func(t *testing.T) {
		err := validatePublicHostname(ctx, "localhost", fakeResolver{})
		assertKind(t, err, rterr.KindHostDenylisted)
	})

	t.Run("private IP literal rejected", func(t *testing.T) {
		err := validatePublicHostname(ctx, "127.0.0.1", fakeResolver{})
		assertKind(t, err, rterr.KindHostPrivate)
	})

	t.Run("resolves to private address rejected", func(t *testing.T) {
		resolver := fakeResolver{addrs: map[string][]net.IPAddr{
			"evil.example.com": {{IP: net.ParseIP("10.0.0.5")}},
		}}
		err := validatePublicHostname(ctx, "evil.example.com", resolver)
		assertKind(t, err, rterr.KindHostPrivate)
	})

	t.Run("resolves to public address allowed", func(t *testing.T) {
		resolver := fakeResolver{addrs: map[string][]net.IPAddr{
			"example.com": {{IP: net.ParseIP("93.184.216.34")}},
		}}
		if err := validatePublicHostname(ctx, "example.com", resolver); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("empty hostname rejected", func(t *testing.T) {
		err := validatePublicHostname(ctx, "   ", fakeResolver{})
		assertKind(t, err, rterr.KindInvalidParams)
	})
}

func assertKind(t *testing.T, err error, want rterr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %s, got nil", want)
	}
	var rtErr *rterr.Error
	if !errors.As(err, &rtErr) {
		t.Fatalf("expected *rterr.Error, got %T: %v", err, err)
	}
	if rtErr.Kind != want {
		t.Errorf("expected kind %s, got %s", want, rtErr.Kind)
	}
}
