package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/shipping-auth/internal/middleware"
	"github.com/iliyamo/shipping-auth/internal/model"
	"github.com/iliyamo/shipping-auth/internal/observability"
	"github.com/iliyamo/shipping-auth/internal/repository"
	"github.com/iliyamo/shipping-auth/internal/service"
	"github.com/iliyamo/shipping-auth/internal/token"
)

// fakeAuth records calls and answers with canned results.
type fakeAuth struct {
	mu       sync.Mutex
	calls    []string
	session  service.Session
	err      error
	remember bool
	external service.ExternalIdentity
}

func (f *fakeAuth) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeAuth) Signup(context.Context, service.SignupInput) (uint64, error) {
	return 1, f.record("signup")
}

func (f *fakeAuth) VerifyEmail(_ context.Context, raw string) error {
	return f.record("verify:" + raw)
}

func (f *fakeAuth) Login(_ context.Context, _, _ string, remember bool) (service.Session, error) {
	f.remember = remember
	if err := f.record("login"); err != nil {
		return service.Session{}, err
	}
	return f.session, nil
}

func (f *fakeAuth) OAuthLogin(_ context.Context, ext service.ExternalIdentity) (service.Session, error) {
	f.external = ext
	if err := f.record("oauth"); err != nil {
		return service.Session{}, err
	}
	return f.session, nil
}

func (f *fakeAuth) ForgotPassword(context.Context, string) error { return f.record("forgot") }

func (f *fakeAuth) ResendVerification(context.Context, string) error { return f.record("resend") }

func (f *fakeAuth) CheckResetToken(_ context.Context, raw string) error {
	return f.record("check:" + raw)
}

func (f *fakeAuth) ResetPassword(context.Context, service.ResetInput) error {
	return f.record("reset")
}

var testIdentity = token.Identity{ID: 3, Email: "ana@example.com", Role: model.RoleUser}

func testSession(remember bool) service.Session {
	exp := time.Now().Add(time.Hour)
	return service.Session{
		Identity: testIdentity,
		Remember: remember,
		Access:   token.Signed{Kind: token.Access, Value: "access.jwt.value", ExpiresAt: exp, MaxAge: 5 * time.Minute},
		Refresh:  token.Signed{Kind: token.Refresh, Value: "refresh.jwt.value", ExpiresAt: exp, MaxAge: 12 * time.Hour},
	}
}

// asIdentity stands in for the gate.
func asIdentity(id token.Identity) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			middleware.SetIdentity(c, id)
			return next(c)
		}
	}
}

// memDirectory is an in-memory UserDirectory.
type memDirectory struct {
	users map[uint64]model.User
}

func (m *memDirectory) List(_ context.Context, limit, offset int) ([]model.User, error) {
	var out []model.User
	for id := uint64(1); id <= 100 && len(out) < limit; id++ {
		if u, ok := m.users[id]; ok {
			if offset > 0 {
				offset--
				continue
			}
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memDirectory) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memDirectory) Delete(_ context.Context, id uint64) (int64, error) {
	if _, ok := m.users[id]; !ok {
		return 0, nil
	}
	delete(m.users, id)
	return 1, nil
}

func newEcho(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	r, err := NewRenderer()
	require.NoError(t, err)
	e.Renderer = r
	e.HTTPErrorHandler = ErrorHandler(observability.DiscardLogger())
	return e
}

func postForm(e *echo.Echo, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func postJSON(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func get(e *echo.Echo, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, ck := range rec.Result().Cookies() {
		out[ck.Name] = ck
	}
	return out
}
