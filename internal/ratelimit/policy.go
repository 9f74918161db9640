package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Outcome is the admission verdict for one request.
type Outcome int

const (
	OutcomeAdmit Outcome = iota
	OutcomeAdmitWhitelisted
	OutcomeReject
	OutcomeExtractionFailed
	OutcomeAdmitPermissive
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmit:
		return "admit"
	case OutcomeAdmitWhitelisted:
		return "admit_whitelisted"
	case OutcomeReject:
		return "reject"
	case OutcomeExtractionFailed:
		return "extraction_failed"
	case OutcomeAdmitPermissive:
		return "admit_permissive"
	default:
		return "unknown"
	}
}

// Verdict is the result of Config.Check.
type Verdict struct {
	Outcome Outcome
	// MethodExempt is set when the request method is outside the limited set.
	MethodExempt bool
	// Decision is the limiter decision, zero when the limiter was not consulted.
	Decision Decision
	// Headers are added to the downstream response of admitted requests.
	Headers http.Header
	// Response is set when the request must be answered without calling the
	// downstream handler.
	Response *Response
	// Result is set in permissive mode for downstream inspection.
	Result *Result
}

// Admitted reports whether the request may proceed.
func (v Verdict) Admitted() bool {
	return v.Response == nil
}

// ApplyHeaders copies v.Headers into h.
func (v Verdict) ApplyHeaders(h http.Header) {
	for k, vs := range v.Headers {
		h[k] = append(h[k][:0:0], vs...)
	}
}

// Observer receives every verdict. It is called synchronously on the
// request path and must not block.
type Observer interface {
	ObserveVerdict(ctx context.Context, extractor string, v Verdict)
}

// Config is a frozen rate-limit policy. It owns the bucket store, so one
// Config must be shared by every request it governs.
type Config[K comparable] struct {
	limiter    *Limiter[K]
	extractor  KeyExtractor[K]
	methods    map[string]struct{}
	headers    bool
	permissive bool
	logger     *slog.Logger
	observer   Observer
	rejectLog  *rate.Sometimes
}

func (c *Config[K]) Limiter() *Limiter[K]       { return c.limiter }
func (c *Config[K]) Extractor() KeyExtractor[K] { return c.extractor }
func (c *Config[K]) Quota() Quota               { return c.limiter.Quota() }
func (c *Config[K]) Permissive() bool           { return c.permissive }
func (c *Config[K]) HeadersEnabled() bool       { return c.headers }

// Methods returns the limited methods, or nil when every method is limited.
func (c *Config[K]) Methods() []string {
	if c.methods == nil {
		return nil
	}
	out := make([]string, 0, len(c.methods))
	for m := range c.methods {
		out = append(out, m)
	}
	return out
}

// Check decides whether r may proceed. The order of evaluation is method
// filter, key extraction, whitelist, then the limiter.
func (c *Config[K]) Check(r Request) Verdict {
	v := c.check(r)
	if c.observer != nil {
		c.observer.ObserveVerdict(r.Context(), c.extractor.Name(), v)
	}
	return v
}

func (c *Config[K]) check(r Request) Verdict {
	ctx := r.Context()

	if !c.limitsMethod(r.Method()) {
		v := Verdict{Outcome: OutcomeAdmit, MethodExempt: true}
		c.markWhitelisted(&v)
		return v
	}

	key, err := c.extractor.Extract(r)
	if err != nil {
		if c.permissive {
			c.logger.DebugContext(ctx, "Key extraction failed",
				"extractor", c.extractor.Name(),
				"error", err,
			)
			return Verdict{
				Outcome: OutcomeAdmitPermissive,
				Result:  &Result{Kind: ResultExtractionError, Message: err.Error()},
			}
		}
		ee := asExtractionError(err)
		c.logger.DebugContext(ctx, "Key extraction failed",
			"extractor", c.extractor.Name(),
			"status", ee.Status,
			"error", err,
		)
		resp := ee.Response()
		return Verdict{Outcome: OutcomeExtractionFailed, Response: &resp}
	}

	if wl, ok := c.extractor.(Whitelister[K]); ok && wl.Whitelisted(key) {
		v := Verdict{Outcome: OutcomeAdmitWhitelisted}
		c.markWhitelisted(&v)
		return v
	}

	d := c.limiter.Check(key)
	if c.logger.Enabled(ctx, slog.LevelDebug) {
		c.logger.DebugContext(ctx, "Rate limit checked", c.keyAttrs(key, d)...)
	}

	if d.Allowed {
		v := Verdict{Outcome: OutcomeAdmit, Decision: d}
		if c.headers {
			v.Headers = http.Header{}
			v.Headers.Set(HeaderLimit, strconv.FormatUint(uint64(d.Limit), 10))
			v.Headers.Set(HeaderRemaining, strconv.FormatUint(uint64(d.Remaining), 10))
		}
		if c.permissive {
			v.Result = &Result{Kind: ResultOK, Limit: d.Limit, Remaining: d.Remaining}
		}
		return v
	}

	c.rejectLog.Do(func() {
		c.logger.InfoContext(ctx, "Rate limit exceeded", c.keyAttrs(key, d)...)
	})

	if c.permissive {
		return Verdict{
			Outcome:  OutcomeAdmitPermissive,
			Decision: d,
			Result:   &Result{Kind: ResultWait, Limit: d.Limit, RetryAfter: d.RetryAfterSeconds()},
		}
	}

	rb := NewResponseBuilder(http.StatusTooManyRequests)
	var resp Response
	if s, ok := c.extractor.(RejectionShaper); ok {
		resp = s.ShapeRejection(d, rb)
	} else {
		resp = defaultRejection(d, rb)
	}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	resp.Header.Set(HeaderAfter, strconv.FormatUint(d.RetryAfterSeconds(), 10))
	if c.headers {
		resp.Header.Set(HeaderLimit, strconv.FormatUint(uint64(d.Limit), 10))
		resp.Header.Set(HeaderRemaining, "0")
	}
	return Verdict{Outcome: OutcomeReject, Decision: d, Response: &resp}
}

func (c *Config[K]) limitsMethod(method string) bool {
	if c.methods == nil {
		return true
	}
	_, ok := c.methods[method]
	return ok
}

// markWhitelisted fills the header and permissive result of a request that
// bypassed the limiter.
func (c *Config[K]) markWhitelisted(v *Verdict) {
	if c.headers {
		v.Headers = http.Header{}
		v.Headers.Set(HeaderWhitelisted, "true")
	}
	if c.permissive {
		v.Result = &Result{Kind: ResultWhitelisted}
	}
}

func (c *Config[K]) keyAttrs(key K, d Decision) []any {
	attrs := []any{
		"extractor", c.extractor.Name(),
		"allowed", d.Allowed,
		"limit", d.Limit,
	}
	if n, ok := c.extractor.(KeyNamer[K]); ok {
		if name, ok := n.KeyName(key); ok {
			attrs = append(attrs, "key", name)
		}
	}
	if d.Allowed {
		attrs = append(attrs, "remaining", d.Remaining)
	} else {
		attrs = append(attrs, "retry_after", d.RetryAfterSeconds())
	}
	return attrs
}

func newRejectLog() *rate.Sometimes {
	return &rate.Sometimes{Interval: time.Second}
}
