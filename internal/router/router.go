// Package router wires handlers and middleware onto the Echo instance.
// Routes fall in two classes: pages, whose auth failures redirect, and
// /api, whose failures are JSON. The error handler tells them apart by
// path, so a route's class is decided by where it is registered here.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/shipping-auth/internal/handler"
	"github.com/iliyamo/shipping-auth/internal/middleware"
	"github.com/iliyamo/shipping-auth/internal/model"
)

// Deps is everything the route table needs.
type Deps struct {
	Auth  *handler.AuthHandler
	OAuth *handler.OAuthHandler
	Pages *handler.PageHandler
	Users *handler.UserHandler
	Gate  *middleware.Gate

	APILimiter   *middleware.RateLimiter
	LoginLimiter *middleware.RateLimiter
	UserCache    *middleware.ResponseCache

	DB       handler.Pinger
	Registry *prometheus.Registry
}

// RegisterRoutes registers the operational endpoints.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))
	if d.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}
}

// RegisterPages registers the server-rendered pages and the OAuth
// redirect routes.
func RegisterPages(e *echo.Echo, d Deps) {
	guest := d.Gate.RedirectIfAuthenticated()
	signedIn := d.Gate.Authenticate()

	e.GET("/", d.Pages.Home())
	e.GET("/login", d.Pages.Login, guest)
	e.GET("/signup", d.Pages.Signup(), guest)
	e.GET("/forgot-password", d.Pages.Forgot(), guest)
	e.GET("/reset-password", d.Pages.ResetPassword)
	e.GET("/verify-email", d.Pages.VerifyEmail)

	e.GET("/dashboard", d.Pages.Dashboard(), signedIn)
	e.GET("/profile", d.Pages.Profile(), signedIn)
	e.GET("/admin", d.Pages.Admin, signedIn, middleware.RequireRole(model.RoleAdmin))

	e.GET("/auth/:provider", d.OAuth.Start, guest)
	e.GET("/auth/:provider/callback", d.OAuth.Callback)
}

// RegisterAPI registers the JSON endpoints under /api. The whole group
// shares the general rate limit; login has its own stricter bucket.
func RegisterAPI(e *echo.Echo, d Deps) {
	api := e.Group("/api", d.APILimiter.Middleware())

	api.POST("/signup", d.Auth.Signup)
	api.POST("/login", d.Auth.Login, d.LoginLimiter.Middleware())
	api.POST("/logout", d.Auth.Logout)
	api.POST("/forgot-password", d.Auth.ForgotPassword)
	api.POST("/reset-password", d.Auth.ResetPassword)
	api.POST("/resend-verification", d.Auth.ResendVerification)
	api.GET("/me", d.Auth.Me, d.Gate.Authenticate())

	// Admin reads are cached per subject; the DELETE bumps the cache
	// generation through the same middleware.
	users := api.Group("/users",
		d.Gate.Authenticate(),
		middleware.RequireRole(model.RoleAdmin),
		d.UserCache.Middleware(),
	)
	users.GET("", d.Users.List)
	users.GET("/:id", d.Users.Get)
	users.DELETE("/:id", d.Users.Delete)
}
