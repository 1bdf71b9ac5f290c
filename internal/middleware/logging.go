package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/shipping-auth/internal/observability"
)

// RequestLogger writes one structured line per request. Errors are handed
// to the HTTP error handler first so the logged status is the one the
// client saw. Only the path is logged: verification and reset links carry
// their token in the query string.
func RequestLogger(log logrus.FieldLogger, metrics *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			entry := log.WithFields(logrus.Fields{
				"method":      req.Method,
				"path":        req.URL.Path,
				"route":       route,
				"status":      res.Status,
				"duration_ms": time.Since(start).Milliseconds(),
				"ip":          c.RealIP(),
				"request_id":  res.Header().Get(echo.HeaderXRequestID),
				"user_id":     userID(c),
			})
			switch {
			case res.Status >= 500:
				entry.Error("http_request")
			case res.Status >= 400:
				entry.Warn("http_request")
			default:
				entry.Info("http_request")
			}
			metrics.Request(req.Method, route, res.Status)
			return nil
		}
	}
}
