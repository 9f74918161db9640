package ginlimit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ratekeeper/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, cfg *ratelimit.Config[string]) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(cfg))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.GET("/status", func(c *gin.Context) {
		res, err := Result(c)
		if errors.Is(err, ratelimit.ErrNoRateLimiter) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})
	return r
}

func bearerConfig(t *testing.T, permissive bool) *ratelimit.Config[string] {
	t.Helper()
	cfg, err := ratelimit.NewBuilder[string](ratelimit.BearerTokenExtractor{}).
		PerSecond(1).
		BurstSize(1).
		UseHeaders().
		Permissive(permissive).
		Clock(ratelimit.NewManualClock(time.Unix(1_700_000_000, 0))).
		Build()
	require.NoError(t, err)
	return cfg
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestMiddleware_AdmitsThenRejects(t *testing.T) {
	r := newEngine(t, bearerConfig(t, false))

	rr := get(r, "/ping", "alice")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong", rr.Body.String())
	assert.Equal(t, "1", rr.Header().Get(ratelimit.HeaderLimit))
	assert.Equal(t, "0", rr.Header().Get(ratelimit.HeaderRemaining))

	rr = get(r, "/ping", "alice")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get(ratelimit.HeaderAfter))
	assert.JSONEq(t, `{"code":429,"error":"TooManyRequests","message":"Too Many Requests","after":1}`, rr.Body.String())

	// Keys are independent.
	assert.Equal(t, http.StatusOK, get(r, "/ping", "bob").Code)
}

func TestMiddleware_ExtractionFailure(t *testing.T) {
	r := newEngine(t, bearerConfig(t, false))

	rr := get(r, "/ping", "")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.JSONEq(t, `{"code":401,"msg":"You don't have permission to access"}`, rr.Body.String())
}

func TestMiddleware_PermissiveResult(t *testing.T) {
	r := newEngine(t, bearerConfig(t, true))

	rr := get(r, "/status", "alice")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"kind":"ok","limit":1}`, rr.Body.String())

	rr = get(r, "/status", "alice")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"kind":"wait","limit":1,"retry_after":1}`, rr.Body.String())
	assert.Empty(t, rr.Header().Get(ratelimit.HeaderAfter))

	rr = get(r, "/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"kind":"extraction_error"`)
}

func TestResult_WithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/status", func(c *gin.Context) {
		_, err := Result(c)
		assert.ErrorIs(t, err, ratelimit.ErrNoRateLimiter)
		_, ok := Verdict(c)
		assert.False(t, ok)
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, get(r, "/status", "").Code)
}

func TestVerdict_RecordedOnContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(bearerConfig(t, false)))
	r.GET("/ping", func(c *gin.Context) {
		v, ok := Verdict(c)
		require.True(t, ok)
		assert.Equal(t, ratelimit.OutcomeAdmit, v.Outcome)
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, get(r, "/ping", "carol").Code)
}
