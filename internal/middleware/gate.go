package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/shipping-auth/internal/observability"
	"github.com/iliyamo/shipping-auth/internal/service"
	"github.com/iliyamo/shipping-auth/internal/token"
)

// TokenCodec is the part of *token.Codec the gate needs.
type TokenCodec interface {
	Issue(kind token.Kind, id token.Identity, remember bool) (token.Signed, error)
	Verify(kind token.Kind, raw string) (token.Claims, error)
}

// Gate resolves the caller's identity from the auth cookies.
type Gate struct {
	codec   TokenCodec
	cookies token.CookieOptions
	log     logrus.FieldLogger
	metrics *observability.Metrics
	landing string
}

// NewGate builds a gate. landing is where RedirectIfAuthenticated sends
// users who are already signed in.
func NewGate(codec TokenCodec, cookies token.CookieOptions, log logrus.FieldLogger, metrics *observability.Metrics, landing string) *Gate {
	return &Gate{codec: codec, cookies: cookies, log: log, metrics: metrics, landing: landing}
}

// Authenticate runs before every protected handler:
//  1. a valid access cookie resolves the identity;
//  2. otherwise a valid refresh cookie mints a new access cookie with the
//     same remember-me lifetime and resolves the identity from it;
//  3. otherwise stale cookies are cleared and the request fails with an
//     authentication error, which the error handler turns into a redirect
//     or a 401 depending on the route.
//
// Concurrent requests that each arrive with only a refresh cookie each mint
// their own access token; the last Set-Cookie the browser sees wins.
func (g *Gate) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if claims, ok := g.verifyCookie(c, token.Access); ok {
				SetIdentity(c, claims.Identity)
				return next(c)
			}

			claims, ok := g.verifyCookie(c, token.Refresh)
			if !ok {
				g.clearStale(c)
				return service.Unauthenticated(nil)
			}

			// Issue derives a fresh expiry; nothing from the refresh token's
			// registered claims is carried over.
			signed, err := g.codec.Issue(token.Access, claims.Identity, claims.Remember)
			if err != nil {
				return service.Dependency("mint access token", err)
			}
			c.SetCookie(g.cookies.Cookie(signed))
			g.metrics.Refreshed()
			g.log.WithFields(logrus.Fields{
				"user_id":    claims.ID,
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			}).Debug("access token refreshed")

			SetIdentity(c, claims.Identity)
			return next(c)
		}
	}
}

// RedirectIfAuthenticated keeps signed-in users off the login and signup
// pages. It checks access then refresh and never touches cookies.
func (g *Gate) RedirectIfAuthenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := g.verifyCookie(c, token.Access); ok {
				return c.Redirect(http.StatusFound, g.landing)
			}
			if _, ok := g.verifyCookie(c, token.Refresh); ok {
				return c.Redirect(http.StatusFound, g.landing)
			}
			return next(c)
		}
	}
}

func (g *Gate) verifyCookie(c echo.Context, kind token.Kind) (token.Claims, bool) {
	ck, err := c.Cookie(token.CookieName(kind))
	if err != nil || ck.Value == "" {
		return token.Claims{}, false
	}
	claims, err := g.codec.Verify(kind, ck.Value)
	if err != nil {
		reason := token.ReasonOf(err)
		g.metrics.Rejected(kind.String(), reason)
		g.log.WithFields(logrus.Fields{
			"kind":   kind.String(),
			"reason": reason,
			"path":   c.Request().URL.Path,
		}).Debug("auth cookie rejected")
		return token.Claims{}, false
	}
	return claims, true
}

func (g *Gate) clearStale(c echo.Context) {
	for _, kind := range []token.Kind{token.Access, token.Refresh} {
		if _, err := c.Cookie(token.CookieName(kind)); err == nil {
			c.SetCookie(g.cookies.Expired(kind))
		}
	}
}
