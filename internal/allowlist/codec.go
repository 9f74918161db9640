package allowlist

import (
	"fmt"
	"net/netip"
	"strings"
)

// KeyCodec converts between limiter keys and their stored text form.
// Format(Parse(s)) is the canonical spelling of s.
type KeyCodec[K comparable] struct {
	Parse  func(string) (K, error)
	Format func(K) string
}

// IPCodec handles keys produced by the peer and real IP extractors.
func IPCodec() KeyCodec[netip.Addr] {
	return KeyCodec[netip.Addr]{
		Parse: func(s string) (netip.Addr, error) {
			addr, err := netip.ParseAddr(strings.TrimSpace(s))
			if err != nil {
				return netip.Addr{}, fmt.Errorf("invalid IP address %q", s)
			}
			return addr.Unmap(), nil
		},
		Format: func(a netip.Addr) string { return a.String() },
	}
}

// StringCodec handles token and header keys, which are stored verbatim.
func StringCodec() KeyCodec[string] {
	return KeyCodec[string]{
		Parse: func(s string) (string, error) {
			if s == "" {
				return "", fmt.Errorf("key cannot be empty")
			}
			return s, nil
		},
		Format: func(s string) string { return s },
	}
}
