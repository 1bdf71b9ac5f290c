package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/shipping-auth/internal/config"
	"github.com/iliyamo/shipping-auth/internal/observability"
)

// bucketScript refills the bucket for the whole intervals elapsed since the
// last refill, then tries to take one token. It answers
// {allowed, tokens_left, wait_ms}.
var bucketScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
local per = tonumber(ARGV[3])
local every = tonumber(ARGV[4])

local h = redis.call('HMGET', KEYS[1], 'tokens', 'stamp')
local tokens = tonumber(h[1]) or cap
local stamp = tonumber(h[2]) or now

if every > 0 and per > 0 and now > stamp then
	local n = math.floor((now - stamp) / every)
	if n > 0 then
		tokens = math.min(cap, tokens + n * per)
		stamp = stamp + n * every
	end
end

local ok, wait = 0, 0
if tokens >= 1 then
	ok = 1
	tokens = tokens - 1
else
	wait = math.max(0, every - (now - stamp))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'stamp', stamp)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[5]))
return {ok, tokens, wait}
`)

// RateLimiter is a Redis token bucket shared by every instance of the
// service. Redis failures let the request through.
type RateLimiter struct {
	name    string
	cfg     config.RateLimitConfig
	rdb     *redis.Client
	log     logrus.FieldLogger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewRateLimiter(name string, cfg config.RateLimitConfig, rdb *redis.Client, log logrus.FieldLogger, metrics *observability.Metrics) *RateLimiter {
	return &RateLimiter{name: name, cfg: cfg, rdb: rdb, log: log, metrics: metrics, now: time.Now}
}

// decision is one bucket evaluation.
type decision struct {
	allowed   bool
	remaining int64
	wait      time.Duration
}

func (rl *RateLimiter) take(c echo.Context, key string) (decision, error) {
	cfg := rl.cfg
	res, err := bucketScript.Run(c.Request().Context(), rl.rdb, []string{key},
		rl.now().UnixMilli(),
		cfg.Capacity,
		cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(),
		int64(cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return decision{}, err
	}
	if len(res) != 3 {
		return decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return decision{
		allowed:   res[0] == 1,
		remaining: res[1],
		wait:      time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// Middleware returns the Echo handler. A disabled limiter or a nil Redis
// client yields a pass-through.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	if rl == nil || !rl.cfg.Enabled || rl.rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(rl.cfg, c)
			d, err := rl.take(c, key)
			if err != nil {
				rl.log.WithError(err).WithField("bucket", rl.name).Warn("ratelimit: redis error, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
			if rl.cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if d.allowed {
				return next(c)
			}

			secs := int(math.Ceil(d.wait.Seconds()))
			h.Set("Retry-After", strconv.Itoa(secs))
			rl.metrics.Limited(rl.name)
			rl.log.WithFields(logrus.Fields{"bucket": rl.name, "retry_after": secs}).Info("ratelimit: request blocked")
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too many requests, please try again later",
				"retry_after": secs,
			})
		}
	}
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	strategy := strings.ToLower(cfg.KeyStrategy)
	switch strategy {
	case "ip", "user", "route", "ip_user", "ip_route", "user_route":
	default:
		strategy = "ip_user_route"
	}

	parts := []string{cfg.Prefix}
	for _, dim := range strings.Split(strategy, "_") {
		switch dim {
		case "ip":
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			parts = append(parts, dim, ip)
		case "user":
			parts = append(parts, dim, userID(c))
		case "route":
			parts = append(parts, dim, c.Request().Method+" "+c.Path())
		}
	}
	return strings.Join(parts, ":")
}
