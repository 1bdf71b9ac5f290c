package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/shipping-auth/internal/mail"
	"github.com/iliyamo/shipping-auth/internal/model"
	"github.com/iliyamo/shipping-auth/internal/observability"
	"github.com/iliyamo/shipping-auth/internal/repository"
	"github.com/iliyamo/shipping-auth/internal/token"
)

// memStore is an in-memory credential store. Token consumption happens
// under the lock so it behaves like the single-statement SQL update.
type memStore struct {
	mu     sync.Mutex
	nextID uint64
	users  map[uint64]*model.User
	links  map[[2]string]uint64
}

func newMemStore() *memStore {
	return &memStore{users: map[uint64]*model.User{}, links: map[[2]string]uint64{}}
}

func (m *memStore) byEmail(email string) *model.User {
	for _, u := range m.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (m *memStore) insert(nu model.NewUser) uint64 {
	m.nextID++
	u := &model.User{
		ID:           m.nextID,
		Name:         nu.Name,
		Email:        nu.Email,
		Phone:        sql.NullString{String: nu.Phone, Valid: nu.Phone != ""},
		PasswordHash: sql.NullString{String: nu.PasswordHash, Valid: nu.PasswordHash != ""},
		Role:         nu.Role,
		IsVerified:   nu.IsVerified,
	}
	m.users[u.ID] = u
	return u.ID
}

func (m *memStore) ExistsByEmailOrPhone(_ context.Context, email, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email || (phone != "" && u.Phone.String == phone) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Create(_ context.Context, nu model.NewUser) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byEmail(nu.Email) != nil {
		return 0, repository.ErrConflict
	}
	return m.insert(nu), nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.byEmail(email); u != nil {
		return *u, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return *u, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memStore) SetVerificationToken(_ context.Context, id uint64, hash string, exp time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, nil
	}
	u.EmailTokenHash = sql.NullString{String: hash, Valid: true}
	u.EmailTokenExpires = sql.NullTime{Time: exp, Valid: true}
	return 1, nil
}

func (m *memStore) findVerification(hash string, now time.Time) *model.User {
	for _, u := range m.users {
		if u.EmailTokenHash.Valid && u.EmailTokenHash.String == hash && u.EmailTokenExpires.Time.After(now) {
			return u
		}
	}
	return nil
}

func (m *memStore) FindByVerificationTokenHash(_ context.Context, hash string, now time.Time) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.findVerification(hash, now); u != nil {
		return *u, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memStore) ConsumeVerificationToken(_ context.Context, hash string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.findVerification(hash, now)
	if u == nil {
		return 0, nil
	}
	u.IsVerified = true
	u.EmailTokenHash = sql.NullString{}
	u.EmailTokenExpires = sql.NullTime{}
	return 1, nil
}

func (m *memStore) SetResetToken(_ context.Context, id uint64, hash string, exp time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, nil
	}
	u.ResetTokenHash = sql.NullString{String: hash, Valid: true}
	u.ResetTokenExpires = sql.NullTime{Time: exp, Valid: true}
	return 1, nil
}

func (m *memStore) findReset(hash string, now time.Time) *model.User {
	for _, u := range m.users {
		if u.ResetTokenHash.Valid && u.ResetTokenHash.String == hash && u.ResetTokenExpires.Time.After(now) {
			return u
		}
	}
	return nil
}

func (m *memStore) FindByResetTokenHash(_ context.Context, hash string, now time.Time) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.findReset(hash, now); u != nil {
		return *u, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memStore) UpdatePasswordByResetToken(_ context.Context, tokenHash, pw string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.findReset(tokenHash, now)
	if u == nil {
		return 0, nil
	}
	u.PasswordHash = sql.NullString{String: pw, Valid: true}
	u.ResetTokenHash = sql.NullString{}
	u.ResetTokenExpires = sql.NullTime{}
	return 1, nil
}

func (m *memStore) FindUserIDByLink(_ context.Context, provider, subject string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.links[[2]string{provider, subject}]; ok {
		return id, nil
	}
	return 0, repository.ErrNotFound
}

func (m *memStore) Link(_ context.Context, userID uint64, provider, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{provider, subject}
	if _, ok := m.links[key]; ok {
		return repository.ErrConflict
	}
	m.links[key] = userID
	return nil
}

func (m *memStore) ProvisionExternal(_ context.Context, nu model.NewUser, provider, subject string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{provider, subject}
	if _, ok := m.links[key]; ok || m.byEmail(nu.Email) != nil {
		return 0, repository.ErrConflict
	}
	nu.PasswordHash = ""
	nu.IsVerified = true
	id := m.insert(nu)
	m.links[key] = id
	return id, nil
}

// signupRace registers a password account for the same email just
// before provisioning, the way a signup landing mid-callback would.
type signupRace struct {
	*memStore
}

func (r signupRace) ProvisionExternal(ctx context.Context, nu model.NewUser, provider, subject string) (uint64, error) {
	r.mu.Lock()
	r.insert(model.NewUser{Email: nu.Email, PasswordHash: "x", Role: model.RoleUser})
	r.mu.Unlock()
	return r.memStore.ProvisionExternal(ctx, nu, provider, subject)
}

// user returns a snapshot of a stored row.
func (m *memStore) user(t *testing.T, email string) model.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byEmail(email)
	require.NotNil(t, u, "no user %s", email)
	return *u
}

type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) messages() []mail.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mail.Message(nil), o.sent...)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	svc   *AuthService
	store *memStore
	mail  *outbox
	clock *testClock
	codec *token.Codec
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	return newHarnessWithLinks(t, store, store)
}

func newHarnessWithLinks(t *testing.T, store *memStore, links ExternalAccounts) *harness {
	t.Helper()
	clk := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := token.NewCodec(token.Options{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Now:           clk.Now,
	})
	require.NoError(t, err)

	box := &outbox{}
	svc := NewAuthService(store, links, box, codec, observability.DiscardLogger(), nil, Options{
		BaseURL:    "https://shop.example.com/",
		BcryptCost: bcrypt.MinCost,
		Now:        clk.Now,
	})
	return &harness{svc: svc, store: store, mail: box, clock: clk, codec: codec}
}

// seedUser inserts a password account directly.
func (h *harness) seedUser(t *testing.T, email, password string, verified bool) uint64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.store.insert(model.NewUser{
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		IsVerified:   verified,
	})
}
