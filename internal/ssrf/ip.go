// Package ssrf implements the network safety layer: URL
// validation, private-address blocking, and a per-host rate limit applied to
// every outbound fetch and every browser navigation in the runtime.
package ssrf

import (
	"strconv"
	"strings"
)

// privateIPv6Prefixes identifies private/link-local IPv6 addresses.
var privateIPv6Prefixes = []string{"fe80:", "fec0:", "fc", "fd"}

func normalizeHostname(hostname string) string {
	normalized := strings.TrimSpace(hostname)
	normalized = strings.ToLower(normalized)
	normalized = strings.TrimSuffix(normalized, ".")

	if strings.HasPrefix(normalized, "[") && strings.HasSuffix(normalized, "]") {
		normalized = normalized[1 : len(normalized)-1]
	}
	return normalized
}

func parseIPv4(address string) ([4]byte, error) {
	var result [4]byte
	parts := strings.Split(address, ".")
	if len(parts) != 4 {
		return result, New("invalid IPv4 address: must have 4 octets")
	}
	for i, part := range parts {
		value, err := strconv.Atoi(part)
		if err != nil {
			return result, New("invalid IPv4 address: invalid octet")
		}
		if value < 0 || value > 255 {
			return result, New("invalid IPv4 address: octet out of range")
		}
		result[i] = byte(value)
	}
	return result, nil
}

func parseIPv4FromMappedIPv6(mapped string) ([4]byte, error) {
	var result [4]byte

	if strings.Contains(mapped, ".") {
		return parseIPv4(mapped)
	}

	parts := strings.Split(mapped, ":")
	var cleanParts []string
	for _, p := range parts {
		if p != "" {
			cleanParts = append(cleanParts, p)
		}
	}

	if len(cleanParts) == 1 {
		value, err := strconv.ParseUint(cleanParts[0], 16, 32)
		if err != nil {
			return result, New("invalid IPv4-mapped IPv6: invalid hex value")
		}
		result[0] = byte((value >> 24) & 0xff)
		result[1] = byte((value >> 16) & 0xff)
		result[2] = byte((value >> 8) & 0xff)
		result[3] = byte(value & 0xff)
		return result, nil
	}

	if len(cleanParts) != 2 {
		return result, New("invalid IPv4-mapped IPv6: expected 2 hex groups")
	}

	high, err := strconv.ParseUint(cleanParts[0], 16, 16)
	if err != nil {
		return result, New("invalid IPv4-mapped IPv6: invalid high hex value")
	}
	low, err := strconv.ParseUint(cleanParts[1], 16, 16)
	if err != nil {
		return result, New("invalid IPv4-mapped IPv6: invalid low hex value")
	}

	value := (high << 16) + low
	result[0] = byte((value >> 24) & 0xff)
	result[1] = byte((value >> 16) & 0xff)
	result[2] = byte((value >> 8) & 0xff)
	result[3] = byte(value & 0xff)
	return result, nil
}

// IsPrivateIPv4 reports whether a 4-octet address falls in a private,
// loopback, link-local, CGNAT, or current-network range.
func IsPrivateIPv4(parts [4]byte) bool {
	octet1, octet2 := parts[0], parts[1]

	switch {
	case octet1 == 0: // 0.0.0.0/8
		return true
	case octet1 == 10: // 10.0.0.0/8
		return true
	case octet1 == 127: // 127.0.0.0/8
		return true
	case octet1 == 169 && octet2 == 254: // 169.254.0.0/16
		return true
	case octet1 == 172 && octet2 >= 16 && octet2 <= 31: // 172.16.0.0/12
		return true
	case octet1 == 192 && octet2 == 168: // 192.168.0.0/16
		return true
	case octet1 == 100 && octet2 >= 64 && octet2 <= 127: // 100.64.0.0/10 CGNAT
		return true
	}
	return false
}

// IsPrivateIPAddress reports whether an IPv4 or IPv6 address string is
// private, loopback, link-local, or unique-local.
func IsPrivateIPAddress(address string) bool {
	normalized := strings.ToLower(strings.TrimSpace(address))
	if strings.HasPrefix(normalized, "[") && strings.HasSuffix(normalized, "]") {
		normalized = normalized[1 : len(normalized)-1]
	}
	if normalized == "" {
		return false
	}

	if strings.HasPrefix(normalized, "::ffff:") {
		mapped := normalized[len("::ffff:"):]
		ipv4, err := parseIPv4FromMappedIPv6(mapped)
		if err == nil {
			return IsPrivateIPv4(ipv4)
		}
	}

	if strings.Contains(normalized, ":") {
		if normalized == "::" || normalized == "::1" {
			return true
		}
		for _, prefix := range privateIPv6Prefixes {
			if strings.HasPrefix(normalized, prefix) {
				return true
			}
		}
		return false
	}

	ipv4, err := parseIPv4(normalized)
	if err != nil {
		return false
	}
	return IsPrivateIPv4(ipv4)
}
