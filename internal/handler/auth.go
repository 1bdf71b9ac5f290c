package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shipping-auth/internal/middleware"
	"github.com/iliyamo/shipping-auth/internal/service"
	"github.com/iliyamo/shipping-auth/internal/token"
)

const requestTimeout = 5 * time.Second

// Authenticator is the slice of *service.AuthService the handlers call.
type Authenticator interface {
	Signup(ctx context.Context, in service.SignupInput) (uint64, error)
	VerifyEmail(ctx context.Context, raw string) error
	Login(ctx context.Context, email, password string, remember bool) (service.Session, error)
	OAuthLogin(ctx context.Context, ext service.ExternalIdentity) (service.Session, error)
	ForgotPassword(ctx context.Context, email string) error
	ResendVerification(ctx context.Context, email string) error
	CheckResetToken(ctx context.Context, raw string) error
	ResetPassword(ctx context.Context, in service.ResetInput) error
}

// AuthHandler bundles dependencies for the JSON auth endpoints.
type AuthHandler struct {
	Auth    Authenticator
	Cookies token.CookieOptions
}

func NewAuthHandler(auth Authenticator, cookies token.CookieOptions) *AuthHandler {
	return &AuthHandler{Auth: auth, Cookies: cookies}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Remember bool   `json:"remember" form:"remember"`
}

type emailReq struct {
	Email string `json:"email" form:"email"`
}

type identityResp struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func message(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"message": msg})
}

func badBody() error { return service.Validation("invalid request body") }

// setSession writes both auth cookies. Tokens never appear in a body.
func (h *AuthHandler) setSession(c echo.Context, s service.Session) {
	c.SetCookie(h.Cookies.Cookie(s.Access))
	c.SetCookie(h.Cookies.Cookie(s.Refresh))
}

func (h *AuthHandler) clearSession(c echo.Context) {
	c.SetCookie(h.Cookies.Expired(token.Access))
	c.SetCookie(h.Cookies.Expired(token.Refresh))
}

// Signup: create an unverified account and email the verification link.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req service.SignupInput
	if err := c.Bind(&req); err != nil {
		return badBody()
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if _, err := h.Auth.Signup(ctx, req); err != nil {
		return err
	}
	return message(c, http.StatusCreated, "account created, check your email for the verification link")
}

// Login: verify credentials and set the cookie pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody()
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sess, err := h.Auth.Login(ctx, req.Email, req.Password, req.Remember)
	if err != nil {
		return err
	}
	h.setSession(c, sess)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "logged in",
		"user":    identityResp{ID: sess.Identity.ID, Email: sess.Identity.Email, Role: sess.Identity.Role},
	})
}

// Logout clears both cookies. Tokens are stateless, so nothing else to do.
func (h *AuthHandler) Logout(c echo.Context) error {
	h.clearSession(c)
	return message(c, http.StatusOK, "logged out")
}

// ForgotPassword always answers the same way so it cannot be used to probe
// for accounts.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return badBody()
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.ForgotPassword(ctx, req.Email); err != nil {
		return err
	}
	return message(c, http.StatusOK, "if an account exists for that address, a reset link is on its way")
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req service.ResetInput
	if err := c.Bind(&req); err != nil {
		return badBody()
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, req); err != nil {
		return err
	}
	return message(c, http.StatusOK, "password updated, you can log in now")
}

func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return badBody()
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.ResendVerification(ctx, req.Email); err != nil {
		return err
	}
	return message(c, http.StatusOK, "if that address is waiting for verification, a new link is on its way")
}

// Me returns the gate-resolved identity.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return service.Unauthenticated(nil)
	}
	return c.JSON(http.StatusOK, identityResp{ID: id.ID, Email: id.Email, Role: id.Role})
}
