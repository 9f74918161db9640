// Package ginlimit adapts the ratelimit engine to gin.
package ginlimit

import (
	"ratekeeper/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// VerdictKey is the gin context key holding the ratelimit.Verdict of the
// current request.
const VerdictKey = "ratelimit_verdict"

// Middleware enforces cfg on a gin engine or route group. Rejected requests
// are aborted with the engine's response. In permissive mode the Result is
// attached to the request context and can be read with Result.
func Middleware[K comparable](cfg *ratelimit.Config[K]) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := cfg.Check(ratelimit.HTTPRequest(c.Request))
		c.Set(VerdictKey, v)

		if v.Response != nil {
			v.Response.Write(c.Writer)
			c.Abort()
			return
		}

		v.ApplyHeaders(c.Writer.Header())
		if v.Result != nil {
			c.Request = c.Request.WithContext(ratelimit.WithResult(c.Request.Context(), *v.Result))
		}
		c.Next()
	}
}

// Result takes the permissive result of the current request. It fails with
// ratelimit.ErrNoRateLimiter when no permissive Middleware ran.
func Result(c *gin.Context) (ratelimit.Result, error) {
	return ratelimit.TakeResult(c.Request.Context())
}

// Verdict returns the verdict recorded by Middleware.
func Verdict(c *gin.Context) (ratelimit.Verdict, bool) {
	value, ok := c.Get(VerdictKey)
	if !ok {
		return ratelimit.Verdict{}, false
	}
	v, ok := value.(ratelimit.Verdict)
	return v, ok
}
