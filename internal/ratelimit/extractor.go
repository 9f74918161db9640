package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
)

// Request is the read-only view of an inbound request that key extraction
// works from. Hosts adapt their own request types to it.
type Request interface {
	Method() string
	// Header returns the first value of the named header, or "".
	Header(name string) string
	// HeaderValues returns every line of the named header in arrival order.
	HeaderValues(name string) []string
	// PeerAddr returns the address of the directly connected peer.
	PeerAddr() (netip.AddrPort, bool)
	Context() context.Context
}

// HTTPRequest adapts a net/http request.
func HTTPRequest(r *http.Request) Request {
	return httpRequest{r}
}

type httpRequest struct {
	r *http.Request
}

func (h httpRequest) Method() string            { return h.r.Method }
func (h httpRequest) Header(name string) string { return h.r.Header.Get(name) }
func (h httpRequest) Context() context.Context  { return h.r.Context() }

func (h httpRequest) HeaderValues(name string) []string {
	return h.r.Header.Values(name)
}

func (h httpRequest) PeerAddr() (netip.AddrPort, bool) {
	return ParsePeerAddr(h.r.RemoteAddr)
}

// ParsePeerAddr parses a "host:port" remote address as reported by net/http.
// A bare IP without a port is accepted with port 0.
func ParsePeerAddr(remote string) (netip.AddrPort, bool) {
	if ap, err := netip.ParseAddrPort(remote); err == nil {
		return normalizeAddrPort(ap), true
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(addr.Unmap(), 0), true
}

func normalizeAddrPort(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// KeyExtractor maps a request to the key its bucket is stored under.
// Extract must not modify the request.
type KeyExtractor[K comparable] interface {
	// Name identifies the extractor in logs.
	Name() string
	Extract(r Request) (K, error)
}

// Whitelister is implemented by extractors that exempt some keys from
// limiting. Whitelisted must not block.
type Whitelister[K comparable] interface {
	Whitelisted(key K) bool
}

// RejectionShaper is implemented by extractors that build their own 429
// response. The x-ratelimit-after header is always added afterwards.
type RejectionShaper interface {
	ShapeRejection(d Decision, rb *ResponseBuilder) Response
}

// KeyNamer is implemented by extractors whose keys can be rendered for logs.
// Returning false keeps the key out of the log record.
type KeyNamer[K comparable] interface {
	KeyName(key K) (string, bool)
}

// ExtractionError is returned by extractors that cannot derive a key. It
// carries the response sent to the client when extraction fails.
type ExtractionError struct {
	Status      int
	ContentType string
	Body        string
}

// NewExtractionError returns a 500 text/plain extraction error.
func NewExtractionError(body string) *ExtractionError {
	return &ExtractionError{
		Status:      http.StatusInternalServerError,
		ContentType: "text/plain; charset=utf-8",
		Body:        body,
	}
}

// WithStatus sets the response status code.
func (e *ExtractionError) WithStatus(status int) *ExtractionError {
	e.Status = status
	return e
}

// WithContentType sets the response content type.
func (e *ExtractionError) WithContentType(ct string) *ExtractionError {
	e.ContentType = ct
	return e
}

func (e *ExtractionError) Error() string {
	return e.Body
}

// Response renders the error as a client response.
func (e *ExtractionError) Response() Response {
	return NewResponseBuilder(e.Status).
		ContentType(e.ContentType).
		Body([]byte(e.Body)).
		Build()
}

// asExtractionError returns err as an *ExtractionError, wrapping foreign
// errors in a generic 500.
func asExtractionError(err error) *ExtractionError {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee
	}
	return NewExtractionError(http.StatusText(http.StatusInternalServerError))
}
