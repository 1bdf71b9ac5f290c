package handler

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/shipping-auth/internal/model"
	"github.com/iliyamo/shipping-auth/internal/token"
)

var admin = token.Identity{ID: 1, Email: "root@example.com", Role: model.RoleAdmin}

func directory() *memDirectory {
	return &memDirectory{users: map[uint64]model.User{
		1: {ID: 1, Name: "Root", Email: "root@example.com", Role: model.RoleAdmin, IsVerified: true,
			PasswordHash: sql.NullString{String: "$2a$", Valid: true}},
		2: {ID: 2, Name: "Ana", Email: "ana@example.com", Role: model.RoleUser, IsVerified: true,
			PasswordHash: sql.NullString{String: "$2a$", Valid: true}, EmailTokenHash: sql.NullString{String: "deadbeef", Valid: true}},
		3: {ID: 3, Name: "Oz", Email: "oz@example.com", Role: model.RoleUser},
	}}
}

func usersServer(t *testing.T, dir *memDirectory) *echo.Echo {
	t.Helper()
	e := newEcho(t)
	h := NewUserHandler(dir)
	g := e.Group("/api/users", asIdentity(admin))
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	return e
}

func del(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
	return rec
}

func TestUserListHidesSecrets(t *testing.T) {
	e := usersServer(t, directory())

	rec := get(e, "/api/users?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"limit":2`)
	assert.Contains(t, body, "ana@example.com")
	assert.NotContains(t, body, "oz@example.com")
	assert.NotContains(t, body, "$2a$")
	assert.NotContains(t, body, "deadbeef")
}

func TestUserGet(t *testing.T) {
	e := usersServer(t, directory())

	rec := get(e, "/api/users/3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"oauth_only":true`)

	assert.Equal(t, http.StatusNotFound, get(e, "/api/users/99").Code)
	assert.Equal(t, http.StatusBadRequest, get(e, "/api/users/abc").Code)
}

func TestUserDelete(t *testing.T) {
	dir := directory()
	e := usersServer(t, dir)

	assert.Equal(t, http.StatusNoContent, del(e, "/api/users/2").Code)
	assert.NotContains(t, dir.users, uint64(2))
	assert.Equal(t, http.StatusNotFound, del(e, "/api/users/2").Code)

	rec := del(e, "/api/users/1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, dir.users, uint64(1))
}

func TestPageParams(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/api/users?limit=5000&offset=-3", nil), httptest.NewRecorder())
	limit, offset := pageParams(c)
	assert.Equal(t, maxPageSize, limit)
	assert.Equal(t, 0, offset)
}
