package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/shipping-auth/internal/oauth"
	"github.com/iliyamo/shipping-auth/internal/service"
	"github.com/iliyamo/shipping-auth/internal/utils"
)

const (
	stateCookieName = "oauthState"
	stateTTL        = 10 * time.Minute
	exchangeTimeout = 10 * time.Second
)

// OAuthHandler runs the provider redirect and callback. The state value
// lives in a short-lived HttpOnly cookie scoped to /auth and must match the
// callback's state parameter.
type OAuthHandler struct {
	*AuthHandler
	Providers oauth.Registry
	Log       logrus.FieldLogger
}

func NewOAuthHandler(auth *AuthHandler, providers oauth.Registry, log logrus.FieldLogger) *OAuthHandler {
	return &OAuthHandler{AuthHandler: auth, Providers: providers, Log: log}
}

func (h *OAuthHandler) provider(c echo.Context) (oauth.Provider, error) {
	p, err := h.Providers.Get(c.Param("provider"))
	if errors.Is(err, oauth.ErrUnknownProvider) {
		return nil, service.NotFound("unknown sign-in provider")
	}
	return p, err
}

func (h *OAuthHandler) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     stateCookieName,
		Value:    value,
		Path:     "/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Start redirects to the provider's consent page.
func (h *OAuthHandler) Start(c echo.Context) error {
	p, err := h.provider(c)
	if err != nil {
		return err
	}
	state, err := utils.RandomState()
	if err != nil {
		return service.Dependency("generate oauth state", err)
	}
	c.SetCookie(h.stateCookie(state, int(stateTTL/time.Second)))
	return c.Redirect(http.StatusFound, p.AuthCodeURL(state))
}

// Callback checks state, exchanges the code, signs the user in and lands
// them on the dashboard.
func (h *OAuthHandler) Callback(c echo.Context) error {
	p, err := h.provider(c)
	if err != nil {
		return err
	}

	ck, err := c.Cookie(stateCookieName)
	c.SetCookie(h.stateCookie("", -1))
	state := c.QueryParam("state")
	if err != nil || ck.Value == "" || subtle.ConstantTimeCompare([]byte(ck.Value), []byte(state)) != 1 {
		return service.Unauthenticated(errors.New("oauth state mismatch"))
	}
	if reason := c.QueryParam("error"); reason != "" {
		h.Log.WithFields(logrus.Fields{"provider": p.Name(), "reason": reason}).Info("oauth consent declined")
		return c.Redirect(http.StatusFound, loginPath)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), exchangeTimeout)
	defer cancel()

	ext, err := p.Exchange(ctx, c.QueryParam("code"))
	if err != nil {
		return service.Unauthenticated(err)
	}
	sess, err := h.Auth.OAuthLogin(ctx, ext)
	if err != nil {
		return err
	}
	h.setSession(c, sess)
	return c.Redirect(http.StatusFound, landingPath)
}
