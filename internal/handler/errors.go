package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/shipping-auth/internal/service"
)

const (
	loginPath   = "/login"
	landingPath = "/dashboard"
)

// isAPI reports whether the request belongs to the JSON route class.
func isAPI(c echo.Context) bool {
	p := c.Request().URL.Path
	return p == "/api" || strings.HasPrefix(p, "/api/")
}

// ErrorHandler is the single place that turns handler errors into
// responses. API routes get {"error": msg} with the status; pages get a
// redirect for authentication (login) and authorization (dashboard)
// failures and an error page otherwise. Dependency failures are logged at
// error, sent to Sentry and answered with a generic message.
func ErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := http.StatusText(status)
		code := service.CodeInternal
		expected := false

		var he *echo.HTTPError
		if se := service.AsError(err); se != nil {
			status, msg, code, expected = se.Status(), se.Message, se.Code, se.Expected()
		} else if errors.As(err, &he) {
			status = he.Code
			msg = http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok && s != "" {
				msg = s
			}
			code = strings.ReplaceAll(strings.ToLower(http.StatusText(he.Code)), " ", "_")
			expected = he.Code < http.StatusInternalServerError
		}

		entry := log.WithFields(logrus.Fields{
			"method":     c.Request().Method,
			"path":       c.Request().URL.Path,
			"status":     status,
			"code":       code,
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		}).WithError(err)
		if expected {
			entry.Warn("request failed")
		} else {
			entry.Error("request failed")
			sentry.CaptureException(err)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		if isAPI(c) {
			_ = c.JSON(status, echo.Map{"error": msg, "code": code})
			return
		}
		switch status {
		case http.StatusUnauthorized:
			_ = c.Redirect(http.StatusFound, loginPath)
		case http.StatusForbidden:
			_ = c.Redirect(http.StatusFound, landingPath)
		default:
			if c.Echo().Renderer == nil {
				_ = c.String(status, fmt.Sprintf("%d %s", status, msg))
				return
			}
			_ = c.Render(status, "error", pageData{Title: http.StatusText(status), Error: msg})
		}
	}
}
