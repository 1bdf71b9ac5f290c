package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/shipping-auth/internal/middleware"
	"github.com/iliyamo/shipping-auth/internal/model"
	"github.com/iliyamo/shipping-auth/internal/repository"
	"github.com/iliyamo/shipping-auth/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// UserDirectory is the admin view of the credential store.
type UserDirectory interface {
	List(ctx context.Context, limit, offset int) ([]model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	Delete(ctx context.Context, id uint64) (int64, error)
}

// UserHandler serves the admin-only user endpoints.
type UserHandler struct {
	Users UserDirectory
}

func NewUserHandler(users UserDirectory) *UserHandler {
	return &UserHandler{Users: users}
}

// userView is what admins see of an account: no hashes, no token digests.
type userView struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	Verified  bool      `json:"is_verified"`
	OAuthOnly bool      `json:"oauth_only"`
	CreatedAt time.Time `json:"created_at"`
}

func viewOf(u model.User) userView {
	return userView{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone.String,
		Role:      u.Role,
		Verified:  u.IsVerified,
		OAuthOnly: !u.HasPassword(),
		CreatedAt: u.CreatedAt,
	}
}

func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, service.Validation("invalid user id")
	}
	return id, nil
}

func pageParams(c echo.Context) (limit, offset int) {
	limit, offset = defaultPageSize, 0
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		limit = min(n, maxPageSize)
	}
	if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
		offset = n
	}
	return limit, offset
}

func (h *UserHandler) list(ctx context.Context, limit, offset int) ([]userView, error) {
	users, err := h.Users.List(ctx, limit, offset)
	if err != nil {
		return nil, service.Dependency("list users", err)
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, viewOf(u))
	}
	return out, nil
}

// List: GET /api/users?limit=&offset=
func (h *UserHandler) List(c echo.Context) error {
	limit, offset := pageParams(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	users, err := h.list(ctx, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users, "limit": limit, "offset": offset})
}

// Get: GET /api/users/:id
func (h *UserHandler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return service.NotFound("user not found")
	}
	if err != nil {
		return service.Dependency("get user", err)
	}
	return c.JSON(http.StatusOK, viewOf(u))
}

// Delete: DELETE /api/users/:id. Admins cannot delete themselves.
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if me, ok := middleware.CurrentIdentity(c); ok && me.ID == id {
		return service.Validation("you cannot delete your own account")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	n, err := h.Users.Delete(ctx, id)
	if err != nil {
		return service.Dependency("delete user", err)
	}
	if n == 0 {
		return service.NotFound("user not found")
	}
	return c.NoContent(http.StatusNoContent)
}
