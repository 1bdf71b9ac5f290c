package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shipping-auth/internal/service"
)

// RequireRole allows the request when the gate-resolved identity carries
// one of roles. It must be mounted after Gate.Authenticate: it trusts the
// identity in the context and verifies nothing itself.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := CurrentIdentity(c)
			if !ok {
				return service.Unauthenticated(errors.New("role check without identity"))
			}
			if !allowed[id.Role] {
				return service.Forbidden()
			}
			return next(c)
		}
	}
}
