package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/shipping-auth/internal/observability"
	"github.com/iliyamo/shipping-auth/internal/service"
	"github.com/iliyamo/shipping-auth/internal/token"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var alice = token.Identity{ID: 7, Email: "alice@example.com", Role: "user"}

type fixture struct {
	e     *echo.Echo
	gate  *Gate
	codec *token.Codec
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := token.NewCodec(token.Options{AccessSecret: "a", RefreshSecret: "r", Now: clk.Now})
	require.NoError(t, err)
	gate := NewGate(codec, token.CookieOptions{}, observability.DiscardLogger(), nil, "/dashboard")
	return &fixture{e: echo.New(), gate: gate, codec: codec, clock: clk}
}

func (f *fixture) issue(t *testing.T, kind token.Kind, remember bool) *http.Cookie {
	t.Helper()
	s, err := f.codec.Issue(kind, alice, remember)
	require.NoError(t, err)
	return &http.Cookie{Name: token.CookieName(kind), Value: s.Value}
}

type result struct {
	rec      *httptest.ResponseRecorder
	err      error
	called   bool
	identity token.Identity
}

func (f *fixture) run(mw echo.MiddlewareFunc, cookies ...*http.Cookie) result {
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)

	var r result
	r.err = mw(func(c echo.Context) error {
		r.called = true
		r.identity, _ = CurrentIdentity(c)
		return c.String(http.StatusOK, "ok")
	})(c)
	r.rec = rec
	return r
}

func setCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, ck := range rec.Result().Cookies() {
		out[ck.Name] = ck
	}
	return out
}

func TestGateAcceptsValidAccessCookie(t *testing.T) {
	f := newFixture(t)
	r := f.run(f.gate.Authenticate(), f.issue(t, token.Access, false))

	require.NoError(t, r.err)
	assert.True(t, r.called)
	assert.Equal(t, alice, r.identity)
	assert.Empty(t, setCookies(r.rec))
}

func TestGateSilentRefresh(t *testing.T) {
	for _, remember := range []bool{false, true} {
		f := newFixture(t)
		access := f.issue(t, token.Access, remember)
		refresh := f.issue(t, token.Refresh, remember)
		f.clock.Advance(20 * time.Minute) // past both access lifetimes

		r := f.run(f.gate.Authenticate(), access, refresh)
		require.NoError(t, r.err)
		assert.True(t, r.called)
		assert.Equal(t, alice, r.identity)

		cks := setCookies(r.rec)
		require.Contains(t, cks, token.AccessCookieName)
		assert.NotContains(t, cks, token.RefreshCookieName)
		minted := cks[token.AccessCookieName]
		assert.True(t, minted.HttpOnly)
		assert.Equal(t, int(f.codec.Lifetime(token.Access, remember)/time.Second), minted.MaxAge)

		claims, err := f.codec.Verify(token.Access, minted.Value)
		require.NoError(t, err)
		assert.Equal(t, remember, claims.Remember)
		assert.Equal(t, f.clock.Now().Add(f.codec.Lifetime(token.Access, remember)), claims.ExpiresAt.UTC())
	}
}

func TestGateRejectsWithoutCookies(t *testing.T) {
	f := newFixture(t)
	r := f.run(f.gate.Authenticate())

	require.Error(t, r.err)
	assert.False(t, r.called)
	se := service.AsError(r.err)
	require.NotNil(t, se)
	assert.Equal(t, service.KindAuthentication, se.Kind)
	assert.Empty(t, setCookies(r.rec))
}

func TestGateClearsStaleCookies(t *testing.T) {
	f := newFixture(t)
	access := f.issue(t, token.Access, false)
	refresh := f.issue(t, token.Refresh, false)
	f.clock.Advance(13 * time.Hour)

	r := f.run(f.gate.Authenticate(), access, refresh)
	require.Error(t, r.err)
	assert.False(t, r.called)

	cks := setCookies(r.rec)
	require.Len(t, cks, 2)
	for _, ck := range cks {
		assert.Empty(t, ck.Value)
		assert.Less(t, ck.MaxAge, 0)
	}
}

func TestGateRejectsAccessTokenInRefreshCookie(t *testing.T) {
	f := newFixture(t)
	s, err := f.codec.Issue(token.Access, alice, false)
	require.NoError(t, err)

	r := f.run(f.gate.Authenticate(), &http.Cookie{Name: token.RefreshCookieName, Value: s.Value})
	require.Error(t, r.err)
	assert.False(t, r.called)
}

func TestGateConcurrentRefreshesAllSucceed(t *testing.T) {
	f := newFixture(t)
	refresh := f.issue(t, token.Refresh, false)
	f.clock.Advance(time.Hour)

	const n = 24
	results := make([]result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.run(f.gate.Authenticate(), refresh)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NoError(t, r.err)
		assert.True(t, r.called)
		minted, ok := setCookies(r.rec)[token.AccessCookieName]
		require.True(t, ok)
		_, err := f.codec.Verify(token.Access, minted.Value)
		assert.NoError(t, err)
	}
}

func TestRedirectIfAuthenticated(t *testing.T) {
	f := newFixture(t)
	mw := f.gate.RedirectIfAuthenticated()

	r := f.run(mw, f.issue(t, token.Access, false))
	require.NoError(t, r.err)
	assert.False(t, r.called)
	assert.Equal(t, http.StatusFound, r.rec.Code)
	assert.Equal(t, "/dashboard", r.rec.Header().Get(echo.HeaderLocation))

	r = f.run(mw, &http.Cookie{Name: token.AccessCookieName, Value: "garbage"}, f.issue(t, token.Refresh, false))
	assert.Equal(t, http.StatusFound, r.rec.Code)
	assert.Empty(t, setCookies(r.rec), "reverse gate must not mint or clear cookies")

	r = f.run(mw, &http.Cookie{Name: token.AccessCookieName, Value: "garbage"})
	require.NoError(t, r.err)
	assert.True(t, r.called)
	assert.Empty(t, setCookies(r.rec))

	r = f.run(mw)
	assert.True(t, r.called)
}
