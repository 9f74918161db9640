package ratelimit

import (
	"context"
	"net/http"
	"net/netip"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeRequest struct {
	method  string
	headers http.Header
	peer    string
	ctx     context.Context
}

func newFakeRequest(peer string) *fakeRequest {
	return &fakeRequest{method: http.MethodGet, headers: http.Header{}, peer: peer}
}

func (r *fakeRequest) Method() string            { return r.method }
func (r *fakeRequest) Header(name string) string { return r.headers.Get(name) }

func (r *fakeRequest) HeaderValues(name string) []string { return r.headers.Values(name) }

func (r *fakeRequest) PeerAddr() (netip.AddrPort, bool) {
	if r.peer == "" {
		return netip.AddrPort{}, false
	}
	return ParsePeerAddr(r.peer)
}

func (r *fakeRequest) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

func mustQuota(t interface{ Fatalf(string, ...any) }, period time.Duration, burst uint32) Quota {
	q, err := NewQuota(period, burst)
	if err != nil {
		t.Fatalf("NewQuota(%s, %d): %v", period, burst, err)
	}
	return q
}
