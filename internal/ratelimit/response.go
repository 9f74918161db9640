package ratelimit

import (
	"fmt"
	"net/http"
)

// Header names emitted by the policy.
const (
	HeaderAfter       = "x-ratelimit-after"
	HeaderLimit       = "x-ratelimit-limit"
	HeaderRemaining   = "x-ratelimit-remaining"
	HeaderWhitelisted = "x-ratelimit-whitelisted"
)

// Response is a transport-neutral short-circuit response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Write sends the response to w.
func (r Response) Write(w http.ResponseWriter) {
	h := w.Header()
	for k, vs := range r.Header {
		h[k] = append([]string(nil), vs...)
	}
	w.WriteHeader(r.Status)
	if len(r.Body) > 0 {
		_, _ = w.Write(r.Body)
	}
}

// ResponseBuilder assembles a Response.
type ResponseBuilder struct {
	resp Response
}

// NewResponseBuilder starts a response with the given status.
func NewResponseBuilder(status int) *ResponseBuilder {
	return &ResponseBuilder{resp: Response{Status: status, Header: make(http.Header)}}
}

func (b *ResponseBuilder) Status(status int) *ResponseBuilder {
	b.resp.Status = status
	return b
}

func (b *ResponseBuilder) ContentType(ct string) *ResponseBuilder {
	if ct != "" {
		b.resp.Header.Set("Content-Type", ct)
	}
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.resp.Header.Set(name, value)
	return b
}

func (b *ResponseBuilder) Body(body []byte) *ResponseBuilder {
	b.resp.Body = body
	return b
}

// Build returns the assembled response.
func (b *ResponseBuilder) Build() Response {
	return b.resp
}

// defaultRejection is used when the extractor does not shape its own
// rejections.
func defaultRejection(d Decision, rb *ResponseBuilder) Response {
	return rb.ContentType("text/plain; charset=utf-8").
		Body([]byte(fmt.Sprintf("Too many requests, retry in %ds", d.RetryAfterSeconds()))).
		Build()
}
