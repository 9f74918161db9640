package ratelimit

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// PeerIPExtractor keys requests by the IP address of the directly connected
// peer.
//
// Behind a reverse proxy every client shares the proxy's address and
// therefore a single bucket. Use RealIPExtractor there.
type PeerIPExtractor struct{}

func (PeerIPExtractor) Name() string { return "peer IP" }

func (PeerIPExtractor) Extract(r Request) (netip.Addr, error) {
	ap, ok := r.PeerAddr()
	if !ok {
		return netip.Addr{}, NewExtractionError("Could not extract peer IP address from request")
	}
	return ap.Addr(), nil
}

func (PeerIPExtractor) KeyName(key netip.Addr) (string, bool) {
	return key.String(), true
}

// GlobalExtractor puts every request in the same bucket.
type GlobalExtractor struct{}

func (GlobalExtractor) Name() string { return "global" }

func (GlobalExtractor) Extract(Request) (struct{}, error) { return struct{}{}, nil }

// Forwarding headers understood by RealIPExtractor.
const (
	HeaderForwarded     = "Forwarded"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderXRealIP       = "X-Real-IP"
)

// RealIPExtractor keys requests by client IP, honoring a single forwarding
// header only when the direct peer is a trusted proxy. Without trusted
// prefixes it behaves like PeerIPExtractor.
//
// The header must be one the trusted proxy sets or appends to. Its hops are
// walked from the right and the first address outside the trusted prefixes
// is the key, so values prepended by the client are never reached while an
// untrusted hop sits to their right. Other forwarding headers are ignored.
type RealIPExtractor struct {
	trusted []netip.Prefix
	header  string
}

// NewRealIPExtractor returns an extractor that trusts the given proxies and
// reads X-Forwarded-For.
func NewRealIPExtractor(trusted ...netip.Prefix) RealIPExtractor {
	ps := make([]netip.Prefix, 0, len(trusted))
	for _, p := range trusted {
		ps = append(ps, p.Masked())
	}
	return RealIPExtractor{trusted: ps, header: HeaderXForwardedFor}
}

// FromHeader returns a copy of e that reads the named header instead.
// Forwarded is parsed as RFC 7239; any other header is read as a
// comma-separated address list. An empty name keeps the current header.
func (e RealIPExtractor) FromHeader(name string) RealIPExtractor {
	if name = strings.TrimSpace(name); name != "" {
		e.header = name
	}
	return e
}

// Header reports the forwarding header e reads.
func (e RealIPExtractor) Header() string {
	if e.header == "" {
		return HeaderXForwardedFor
	}
	return e.header
}

func (RealIPExtractor) Name() string { return "real IP" }

func (e RealIPExtractor) Extract(r Request) (netip.Addr, error) {
	ap, ok := r.PeerAddr()
	if !ok {
		return netip.Addr{}, NewExtractionError("Could not extract real IP address from request")
	}
	peer := ap.Addr()
	if !e.isTrusted(peer) {
		return peer, nil
	}
	var hops []string
	if strings.EqualFold(e.Header(), HeaderForwarded) {
		hops = forwardedHops(r.HeaderValues(HeaderForwarded))
	} else {
		hops = listHops(r.HeaderValues(e.Header()))
	}
	if addr, ok := e.rightmostUntrusted(hops); ok {
		return addr, nil
	}
	return peer, nil
}

func (RealIPExtractor) KeyName(key netip.Addr) (string, bool) {
	return key.String(), true
}

func (e RealIPExtractor) isTrusted(addr netip.Addr) bool {
	for _, p := range e.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// rightmostUntrusted walks hops from the right and returns the first address
// that is not a trusted proxy. When every hop is trusted the leftmost one is
// returned. An unparsable hop ends the walk without a result.
func (e RealIPExtractor) rightmostUntrusted(hops []string) (netip.Addr, bool) {
	for i := len(hops) - 1; i >= 0; i-- {
		addr, ok := parseHop(hops[i])
		if !ok {
			return netip.Addr{}, false
		}
		if !e.isTrusted(addr) || i == 0 {
			return addr, true
		}
	}
	return netip.Addr{}, false
}

// listHops splits every line of a comma-separated address header. Repeated
// lines are equivalent to one line joined with commas.
func listHops(lines []string) []string {
	var hops []string
	for _, line := range lines {
		for _, h := range strings.Split(line, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hops = append(hops, h)
			}
		}
	}
	return hops
}

// forwardedHops returns the for= value of every element of an RFC 7239
// Forwarded header. Elements without one yield an empty hop.
func forwardedHops(lines []string) []string {
	var hops []string
	for _, element := range listHops(lines) {
		hop := ""
		for _, pair := range strings.Split(element, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && strings.EqualFold(strings.TrimSpace(name), "for") {
				hop = strings.Trim(strings.TrimSpace(value), `"`)
				break
			}
		}
		hops = append(hops, hop)
	}
	return hops
}

// parseHop accepts a bare address, "addr:port" and "[v6]" / "[v6]:port".
func parseHop(hop string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(hop); err == nil {
		return ap.Addr().Unmap(), true
	}
	hop = strings.TrimSuffix(strings.TrimPrefix(hop, "["), "]")
	if addr, err := netip.ParseAddr(hop); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}

// BearerTokenExtractor keys requests by the bearer token of the
// Authorization header. Requests without a token are refused with 401.
type BearerTokenExtractor struct{}

func (BearerTokenExtractor) Name() string { return "bearer token" }

func (BearerTokenExtractor) Extract(r Request) (string, error) {
	auth := r.Header("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", NewExtractionError(`{"code":401,"msg":"You don't have permission to access"}`).
			WithStatus(http.StatusUnauthorized).
			WithContentType("application/json")
	}
	return token, nil
}

func (BearerTokenExtractor) ShapeRejection(d Decision, rb *ResponseBuilder) Response {
	body := fmt.Sprintf(`{"code":429,"error":"TooManyRequests","message":"Too Many Requests","after":%d}`,
		d.RetryAfterSeconds())
	return rb.ContentType("application/json").Body([]byte(body)).Build()
}

// HeaderExtractor keys requests by the values of one or more headers. With a
// single header the value is the key. With several, each value has "\" and
// "-" escaped with a backslash before they are joined with "-", so distinct
// value tuples never share a key. A request missing any header is refused
// with 400.
type HeaderExtractor struct {
	names []string
}

// NewHeaderExtractor returns an extractor over the named headers.
func NewHeaderExtractor(names ...string) HeaderExtractor {
	return HeaderExtractor{names: append([]string(nil), names...)}
}

func (e HeaderExtractor) Name() string {
	return "header(" + strings.Join(e.names, ",") + ")"
}

func (e HeaderExtractor) Extract(r Request) (string, error) {
	if len(e.names) == 0 {
		return "", NewExtractionError("no key headers configured")
	}
	values := make([]string, 0, len(e.names))
	for _, name := range e.names {
		v := r.Header(name)
		if v == "" {
			return "", NewExtractionError("missing header " + name).WithStatus(http.StatusBadRequest)
		}
		values = append(values, v)
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return joinHeaderValues(values), nil
}

var headerValueEscaper = strings.NewReplacer(`\`, `\\`, "-", `\-`)

func joinHeaderValues(values []string) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte('-')
		}
		headerValueEscaper.WriteString(&b, v)
	}
	return b.String()
}

func (e HeaderExtractor) KeyName(key string) (string, bool) {
	return key, true
}

// WithWhitelist exempts the keys in set from limiting. Keys already
// whitelisted by ex stay whitelisted. Rejection shaping and key naming are
// delegated to ex.
func WithWhitelist[K comparable](ex KeyExtractor[K], set *KeySet[K]) KeyExtractor[K] {
	return whitelisted[K]{inner: ex, set: set}
}

type whitelisted[K comparable] struct {
	inner KeyExtractor[K]
	set   *KeySet[K]
}

func (w whitelisted[K]) Name() string { return w.inner.Name() }

func (w whitelisted[K]) Extract(r Request) (K, error) { return w.inner.Extract(r) }

func (w whitelisted[K]) Whitelisted(key K) bool {
	if w.set.Contains(key) {
		return true
	}
	if wl, ok := w.inner.(Whitelister[K]); ok {
		return wl.Whitelisted(key)
	}
	return false
}

func (w whitelisted[K]) ShapeRejection(d Decision, rb *ResponseBuilder) Response {
	if s, ok := w.inner.(RejectionShaper); ok {
		return s.ShapeRejection(d, rb)
	}
	return defaultRejection(d, rb)
}

func (w whitelisted[K]) KeyName(key K) (string, bool) {
	if n, ok := w.inner.(KeyNamer[K]); ok {
		return n.KeyName(key)
	}
	return "", false
}
