package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/shipping-auth/internal/config"
	"github.com/iliyamo/shipping-auth/internal/observability"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func loginBucket() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            2 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl:login",
	}
}

func post(e *echo.Echo, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterBlocksAndRefills(t *testing.T) {
	_, rdb := newRedis(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	rl := NewRateLimiter("login", loginBucket(), rdb, observability.DiscardLogger(), metrics)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	e := echo.New()
	e.POST("/api/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, rl.Middleware())

	assert.Equal(t, http.StatusNoContent, post(e, "/api/login", "198.51.100.1").Code)
	rec := post(e, "/api/login", "198.51.100.1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = post(e, "/api/login", "198.51.100.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "too many requests")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimited.WithLabelValues("login")))

	// Another client has its own bucket.
	assert.Equal(t, http.StatusNoContent, post(e, "/api/login", "198.51.100.2").Code)

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusNoContent, post(e, "/api/login", "198.51.100.1").Code)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	rl := NewRateLimiter("login", loginBucket(), rdb, observability.DiscardLogger(), nil)
	e := echo.New()
	e.POST("/api/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, rl.Middleware())

	mr.Close()
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, post(e, "/api/login", "198.51.100.1").Code)
	}
}

func TestRateLimiterPassThrough(t *testing.T) {
	disabled := loginBucket()
	disabled.Enabled = false
	for _, rl := range []*RateLimiter{
		nil,
		NewRateLimiter("login", loginBucket(), nil, observability.DiscardLogger(), nil),
		NewRateLimiter("login", disabled, redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), observability.DiscardLogger(), nil),
	} {
		e := echo.New()
		e.POST("/api/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, rl.Middleware())
		for i := 0; i < 4; i++ {
			rec := post(e, "/api/login", "198.51.100.1")
			require.Equal(t, http.StatusNoContent, rec.Code)
			assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		}
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/login")

	cfg := loginBucket()
	assert.Equal(t, "rl:login:ip:203.0.113.9:route:POST /api/login", buildRateKey(cfg, c))

	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:login:user:guest", buildRateKey(cfg, c))
	SetIdentity(c, alice)
	assert.Equal(t, "rl:login:user:7", buildRateKey(cfg, c))
}
