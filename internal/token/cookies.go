package token

import (
	"net/http"
	"time"
)

// Cookie names are part of the public contract with the browser.
const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
)

// CookieName maps a kind to its cookie.
func CookieName(kind Kind) string {
	if kind == Refresh {
		return RefreshCookieName
	}
	return AccessCookieName
}

// CookieOptions holds the attributes shared by both auth cookies. Cookies
// are always HttpOnly; SameSite is Lax unless Strict is asked for.
type CookieOptions struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
	Path     string
}

// Cookie wraps a signed token. Max-Age matches the token lifetime so the
// browser drops the cookie when the token stops verifying.
func (o CookieOptions) Cookie(s Signed) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName(s.Kind),
		Value:    s.Value,
		Path:     o.path(),
		Domain:   o.Domain,
		MaxAge:   int(s.MaxAge / time.Second),
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: o.sameSite(),
	}
}

// Expired returns a cookie that deletes the kind's cookie in the browser.
func (o CookieOptions) Expired(kind Kind) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName(kind),
		Value:    "",
		Path:     o.path(),
		Domain:   o.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: o.sameSite(),
	}
}

func (o CookieOptions) path() string {
	if o.Path == "" {
		return "/"
	}
	return o.Path
}

func (o CookieOptions) sameSite() http.SameSite {
	if o.SameSite == http.SameSiteStrictMode {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}
