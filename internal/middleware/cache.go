package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/shipping-auth/internal/config"
)

// recorder tees the response body into a bounded buffer so a successful
// read can be stored after the handler returns.
type recorder struct {
	http.ResponseWriter
	status   int
	body     bytes.Buffer
	limit    int
	overflow bool
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.overflow {
		if r.limit > 0 && r.body.Len()+len(b) > r.limit {
			r.overflow = true
			r.body.Reset()
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// ResponseCache caches successful reads of a route group in Redis. Entries
// are private to the requesting subject, and any successful write through
// the same group bumps a generation counter that retires every entry.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
	log logrus.FieldLogger
}

func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client, log logrus.FieldLogger) *ResponseCache {
	return &ResponseCache{cfg: cfg, rdb: rdb, log: log}
}

func (rc *ResponseCache) generationKey() string { return rc.cfg.Prefix + ":gen" }

func (rc *ResponseCache) generation(ctx context.Context) string {
	gen, err := rc.rdb.Get(ctx, rc.generationKey()).Result()
	if err != nil {
		return "0"
	}
	return gen
}

// key builds a stable entry key from method, route, query, subject and the
// current generation.
func (rc *ResponseCache) key(c echo.Context, gen string) string {
	r := c.Request()
	tail := strings.Join([]string{r.Method, c.Path(), r.URL.RawQuery, userID(c), gen}, "|")
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("%s:%x", rc.cfg.Prefix, sum[:])
}

// Middleware returns the Echo handler; pass-through when disabled or when
// Redis is unavailable.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if rc == nil || !rc.cfg.Enabled || rc.rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				if err := next(c); err != nil {
					return err
				}
				if c.Response().Status < http.StatusBadRequest {
					if err := rc.rdb.Incr(ctx, rc.generationKey()).Err(); err != nil {
						rc.log.WithError(err).Warn("cache: generation bump failed")
					}
				}
				return nil
			}

			key := rc.key(c, rc.generation(ctx))
			if hit, ok := rc.load(ctx, key); ok {
				return hit.replay(c)
			}

			rec := &recorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: rc.cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if rec.status == http.StatusOK && !rec.overflow {
				rc.store(context.WithoutCancel(ctx), key, c.Response().Header(), rec.body.Bytes())
			}
			return nil
		}
	}
}

// entry is the stored form of a cached 200 response.
type entry struct {
	Header http.Header `json:"h"`
	Body   []byte      `json:"b"`
}

func (e entry) replay(c echo.Context) error {
	h := c.Response().Header()
	for k, vals := range e.Header {
		if k == echo.HeaderContentLength || k == http.CanonicalHeaderKey(echo.HeaderXRequestID) {
			continue
		}
		h[k] = append([]string(nil), vals...)
	}
	h.Set("X-Cache", "HIT")
	return c.Blob(http.StatusOK, h.Get(echo.HeaderContentType), e.Body)
}

func (rc *ResponseCache) load(ctx context.Context, key string) (entry, bool) {
	raw, err := rc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return entry{}, false
	}
	return e, true
}

// store saves the response minus per-request headers. Cookies are never
// cached: a silent refresh must not be replayed to another request.
func (rc *ResponseCache) store(ctx context.Context, key string, header http.Header, body []byte) {
	h := header.Clone()
	h.Del("X-Cache")
	h.Del("Set-Cookie")
	h.Del(echo.HeaderXRequestID)
	raw, err := json.Marshal(entry{Header: h, Body: body})
	if err != nil {
		return
	}
	if err := rc.rdb.Set(ctx, key, raw, rc.cfg.TTL).Err(); err != nil {
		rc.log.WithError(err).Warn("cache: store failed")
	}
}
