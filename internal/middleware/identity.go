package middleware

// identity.go holds the helpers that move the gate-resolved identity through
// the Echo context. Handlers read it with CurrentIdentity; the rate limiter
// and response cache key on userID.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shipping-auth/internal/token"
)

const identityKey = "auth.identity"

// SetIdentity attaches a resolved identity to the request.
func SetIdentity(c echo.Context, id token.Identity) {
	c.Set(identityKey, id)
}

// CurrentIdentity returns the identity attached by the gate.
func CurrentIdentity(c echo.Context) (token.Identity, bool) {
	id, ok := c.Get(identityKey).(token.Identity)
	return id, ok && id.ID != 0
}

// userID returns the subject as a string, or "guest" when no user is
// authenticated.
func userID(c echo.Context) string {
	if id, ok := CurrentIdentity(c); ok {
		return strconv.FormatUint(id.ID, 10)
	}
	return "guest"
}
