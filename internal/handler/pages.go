package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shipping-auth/internal/middleware"
)

// PageHandler renders the server-side pages. Forms post to the JSON API.
type PageHandler struct {
	Auth      Authenticator
	Users     *UserHandler
	Providers []string
}

func NewPageHandler(auth Authenticator, users *UserHandler, providers []string) *PageHandler {
	return &PageHandler{Auth: auth, Users: users, Providers: providers}
}

func (h *PageHandler) data(c echo.Context, title string) pageData {
	d := pageData{Title: title}
	if id, ok := middleware.CurrentIdentity(c); ok {
		d.User = &id
	}
	return d
}

// static returns a handler that renders a page with no extra data.
func (h *PageHandler) static(page, title string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.Render(http.StatusOK, page, h.data(c, title))
	}
}

func (h *PageHandler) Home() echo.HandlerFunc { return h.static("home", "Welcome") }
func (h *PageHandler) Signup() echo.HandlerFunc { return h.static("signup", "Create an account") }
func (h *PageHandler) Forgot() echo.HandlerFunc { return h.static("forgot", "Forgot password") }
func (h *PageHandler) Dashboard() echo.HandlerFunc { return h.static("dashboard", "Dashboard") }
func (h *PageHandler) Profile() echo.HandlerFunc { return h.static("profile", "Profile") }

func (h *PageHandler) Login(c echo.Context) error {
	d := h.data(c, "Log in")
	d.Providers = h.Providers
	return c.Render(http.StatusOK, "login", d)
}

// VerifyEmail consumes the emailed token. A bad or used link ends on the
// error page through the error handler.
func (h *PageHandler) VerifyEmail(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.VerifyEmail(ctx, c.QueryParam("token")); err != nil {
		return err
	}
	d := h.data(c, "Email verified")
	d.Message = "Your email address is verified."
	return c.Render(http.StatusOK, "verified", d)
}

// ResetPassword only renders the form for a token that is still valid.
func (h *PageHandler) ResetPassword(c echo.Context) error {
	raw := c.QueryParam("resetToken")
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.CheckResetToken(ctx, raw); err != nil {
		return err
	}
	d := h.data(c, "Choose a new password")
	d.Token = raw
	return c.Render(http.StatusOK, "reset", d)
}

func (h *PageHandler) Admin(c echo.Context) error {
	limit, offset := pageParams(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	users, err := h.Users.list(ctx, limit, offset)
	if err != nil {
		return err
	}
	d := h.data(c, "Users")
	d.Users = users
	return c.Render(http.StatusOK, "admin", d)
}
