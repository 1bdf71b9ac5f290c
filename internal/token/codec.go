// Package token issues and verifies the signed access and refresh tokens
// that back the accessToken/refreshToken cookies. Tokens are self-contained
// HS256 JWTs; nothing about them is stored server side.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind selects the token class. Each kind is signed with its own secret.
type Kind int

const (
	Access Kind = iota
	Refresh
)

func (k Kind) String() string {
	switch k {
	case Access:
		return "access"
	case Refresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Identity is the claim set embedded in every token and handed to handlers
// once the request gate has resolved it.
type Identity struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Claims is what Verify returns: the identity plus the metadata the gate
// needs to mint a replacement access token.
type Claims struct {
	Identity
	Remember  bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Signed is an encoded token with the lifetime it was issued for.
type Signed struct {
	Kind      Kind
	Value     string
	ExpiresAt time.Time
	MaxAge    time.Duration
}

// Lifetimes holds the validity window of one kind for both remember-me
// states.
type Lifetimes struct {
	Default  time.Duration
	Remember time.Duration
}

// For picks the window for the remember-me flag.
func (l Lifetimes) For(remember bool) time.Duration {
	if remember {
		return l.Remember
	}
	return l.Default
}

var (
	DefaultAccessLifetimes  = Lifetimes{Default: 5 * time.Minute, Remember: 15 * time.Minute}
	DefaultRefreshLifetimes = Lifetimes{Default: 12 * time.Hour, Remember: 15 * 24 * time.Hour}
)

var (
	ErrMissingSecret = errors.New("token: access and refresh secrets are required")
	ErrSharedSecret  = errors.New("token: access and refresh secrets must differ")
)

// Options configures a Codec. Secrets are copied at construction and never
// change afterwards.
type Options struct {
	AccessSecret  string
	RefreshSecret string
	Access        Lifetimes
	Refresh       Lifetimes
	Issuer        string
	Now           func() time.Time
}

// Codec signs and verifies tokens. It is safe for concurrent use.
type Codec struct {
	keys      map[Kind][]byte
	lifetimes map[Kind]Lifetimes
	issuer    string
	now       func() time.Time
}

// NewCodec validates the options and returns a ready codec.
func NewCodec(opts Options) (*Codec, error) {
	if opts.AccessSecret == "" || opts.RefreshSecret == "" {
		return nil, ErrMissingSecret
	}
	if opts.AccessSecret == opts.RefreshSecret {
		return nil, ErrSharedSecret
	}
	access := withDefaults(opts.Access, DefaultAccessLifetimes)
	refresh := withDefaults(opts.Refresh, DefaultRefreshLifetimes)

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{
		keys: map[Kind][]byte{
			Access:  []byte(opts.AccessSecret),
			Refresh: []byte(opts.RefreshSecret),
		},
		lifetimes: map[Kind]Lifetimes{Access: access, Refresh: refresh},
		issuer:    opts.Issuer,
		now:       now,
	}, nil
}

func withDefaults(l, def Lifetimes) Lifetimes {
	if l.Default <= 0 {
		l.Default = def.Default
	}
	if l.Remember <= 0 {
		l.Remember = def.Remember
	}
	return l
}

// Lifetime reports how long a token of the given kind lives.
func (c *Codec) Lifetime(kind Kind, remember bool) time.Duration {
	return c.lifetimes[kind].For(remember)
}

// payload is the JSON body of a token. Use marks the kind so a token can
// never be replayed as the other kind even if secrets were misconfigured.
type payload struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	Remember bool   `json:"rm,omitempty"`
	Use      string `json:"use"`
	jwt.RegisteredClaims
}

// Issue signs a token of the given kind for id. Expiry is derived from the
// kind and the remember-me flag; any previous expiry is never carried over.
func (c *Codec) Issue(kind Kind, id Identity, remember bool) (Signed, error) {
	key, ok := c.keys[kind]
	if !ok {
		return Signed{}, fmt.Errorf("token: unknown kind %d", kind)
	}
	now := c.now().UTC()
	ttl := c.Lifetime(kind, remember)
	exp := now.Add(ttl)

	p := payload{
		Email:    id.Email,
		Role:     id.Role,
		Remember: remember,
		Use:      kind.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(id.ID, 10),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, p).SignedString(key)
	if err != nil {
		return Signed{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return Signed{Kind: kind, Value: value, ExpiresAt: exp, MaxAge: ttl}, nil
}

// Verify checks signature, algorithm, expiry and kind. Every failure matches
// ErrInvalid; the wrapped VerifyError carries the reason for logs only.
func (c *Codec) Verify(kind Kind, raw string) (Claims, error) {
	key, ok := c.keys[kind]
	if !ok {
		return Claims{}, &VerifyError{Kind: kind, Reason: ReasonMalformed}
	}
	if raw == "" {
		return Claims{}, &VerifyError{Kind: kind, Reason: ReasonMissing}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var p payload
	if _, err := jwt.ParseWithClaims(raw, &p, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...); err != nil {
		return Claims{}, &VerifyError{Kind: kind, Reason: reasonOf(err), Err: err}
	}
	if p.Use != kind.String() {
		return Claims{}, &VerifyError{Kind: kind, Reason: ReasonWrongUse}
	}
	uid, err := strconv.ParseUint(p.Subject, 10, 64)
	if err != nil || uid == 0 {
		return Claims{}, &VerifyError{Kind: kind, Reason: ReasonMalformed, Err: err}
	}

	claims := Claims{
		Identity: Identity{ID: uid, Email: p.Email, Role: p.Role},
		Remember: p.Remember,
	}
	if p.IssuedAt != nil {
		claims.IssuedAt = p.IssuedAt.Time
	}
	if p.ExpiresAt != nil {
		claims.ExpiresAt = p.ExpiresAt.Time
	}
	return claims, nil
}
