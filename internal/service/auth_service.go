// Package service holds the authentication state machine. Handlers call
// into it; it talks to the credential store, the token codec and the
// email dispatcher through the interfaces below.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/shipping-auth/internal/mail"
	"github.com/iliyamo/shipping-auth/internal/model"
	"github.com/iliyamo/shipping-auth/internal/observability"
	"github.com/iliyamo/shipping-auth/internal/repository"
	"github.com/iliyamo/shipping-auth/internal/token"
	"github.com/iliyamo/shipping-auth/internal/utils"
)

// CredentialStore persists user records. Mutations report affected rows.
type CredentialStore interface {
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)
	Create(ctx context.Context, nu model.NewUser) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	SetVerificationToken(ctx context.Context, userID uint64, hash string, exp time.Time) (int64, error)
	FindByVerificationTokenHash(ctx context.Context, hash string, now time.Time) (model.User, error)
	ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (int64, error)
	SetResetToken(ctx context.Context, userID uint64, hash string, exp time.Time) (int64, error)
	FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (model.User, error)
	UpdatePasswordByResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (int64, error)
}

// ExternalAccounts links provider identities to users.
type ExternalAccounts interface {
	FindUserIDByLink(ctx context.Context, provider, subject string) (uint64, error)
	Link(ctx context.Context, userID uint64, provider, subject string) error
	ProvisionExternal(ctx context.Context, nu model.NewUser, provider, subject string) (uint64, error)
}

// Mailer hands an email to whatever delivers it.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// TokenIssuer signs access and refresh tokens.
type TokenIssuer interface {
	Issue(kind token.Kind, id token.Identity, remember bool) (token.Signed, error)
}

// Options are the service's tunables. Zero values pick the defaults.
type Options struct {
	BaseURL     string
	BcryptCost  int
	VerifyTTL   time.Duration
	ResetTTL    time.Duration
	MailTimeout time.Duration
	Now         func() time.Time
}

// Session is the token pair produced by a successful login. The handler
// turns it into cookies; it is never serialised into a response body.
type Session struct {
	Identity token.Identity
	Remember bool
	Access   token.Signed
	Refresh  token.Signed
}

// ExternalIdentity is what an OAuth provider vouches for after the
// handshake.
type ExternalIdentity struct {
	Provider      string
	Subject       string
	Email         string
	Name          string
	EmailVerified bool
}

// AuthService implements signup, verification, login, OAuth login and the
// password reset flow.
type AuthService struct {
	users   CredentialStore
	links   ExternalAccounts
	mailer  Mailer
	tokens  TokenIssuer
	log     logrus.FieldLogger
	metrics *observability.Metrics
	opts    Options
}

func NewAuthService(users CredentialStore, links ExternalAccounts, mailer Mailer, tokens TokenIssuer,
	log logrus.FieldLogger, metrics *observability.Metrics, opts Options) *AuthService {
	if opts.VerifyTTL <= 0 {
		opts.VerifyTTL = time.Hour
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	if opts.MailTimeout <= 0 {
		opts.MailTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AuthService{
		users:   users,
		links:   links,
		mailer:  mailer,
		tokens:  tokens,
		log:     log,
		metrics: metrics,
		opts:    opts,
	}
}

func (s *AuthService) now() time.Time { return s.opts.Now().UTC() }

func accountExists() *Error {
	return newError(KindConflict, CodeAccountExists, "an account with these details already exists")
}

// Verification and reset links answer the same way whether the token never
// existed, was already used or has expired.
func invalidToken() *Error {
	return &Error{Kind: KindAuthentication, Code: CodeInvalidToken, Message: "this link is invalid or has expired", status: 400}
}

// Signup creates an unverified account and emails a verification link.
// It returns the new user's id.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (uint64, error) {
	if verr := validateSignup(in); verr != nil {
		s.metrics.Auth("signup", "invalid")
		return 0, verr
	}
	email := NormalizeEmail(in.Email)
	phone := NormalizePhone(in.Phone)

	taken, err := s.users.ExistsByEmailOrPhone(ctx, email, phone)
	if err != nil {
		return 0, Dependency("check existing account", err)
	}
	if taken {
		s.metrics.Auth("signup", "conflict")
		return 0, accountExists()
	}

	hash, err := utils.HashPassword(in.Password, s.opts.BcryptCost)
	if err != nil {
		return 0, Dependency("hash password", err)
	}
	id, err := s.users.Create(ctx, model.NewUser{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Role:         model.RoleUser,
	})
	if errors.Is(err, repository.ErrConflict) {
		s.metrics.Auth("signup", "conflict")
		return 0, accountExists()
	}
	if err != nil {
		return 0, Dependency("create user", err)
	}

	if err := s.sendVerification(ctx, id, email); err != nil {
		return 0, err
	}
	s.metrics.Auth("signup", "ok")
	s.log.WithField("user_id", id).Info("user signed up")
	return id, nil
}

// sendVerification stores a fresh verification token, replacing any
// previous one, then emails the raw value.
func (s *AuthService) sendVerification(ctx context.Context, userID uint64, email string) error {
	raw, hash, err := utils.GenerateSecureToken()
	if err != nil {
		return Dependency("generate verification token", err)
	}
	n, err := s.users.SetVerificationToken(ctx, userID, hash, s.now().Add(s.opts.VerifyTTL))
	if err != nil {
		return Dependency("store verification token", err)
	}
	if n == 0 {
		return Dependency("store verification token", repository.ErrNotFound)
	}
	s.dispatch(ctx, templateVerify, userID, verificationMessage(email, s.link("/verify-email", "token", raw)))
	return nil
}

// dispatch sends after the token is committed. A failed send is logged and
// counted but never fails the caller: the stored token stays usable and the
// user can ask for another email.
func (s *AuthService) dispatch(ctx context.Context, template string, userID uint64, msg mail.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.MailTimeout)
	defer cancel()

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.metrics.Email(template, "failed")
		s.log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "template": template}).
			Error("email dispatch failed")
		return
	}
	s.metrics.Email(template, "sent")
}

// VerifyEmail consumes a verification token. The consume is a single
// conditional update, so of two concurrent calls with the same token only
// one succeeds.
func (s *AuthService) VerifyEmail(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalidToken()
	}
	hash := utils.HashToken(raw)
	now := s.now()

	u, err := s.users.FindByVerificationTokenHash(ctx, hash, now)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.Auth("verify_email", "invalid")
		return invalidToken()
	}
	if err != nil {
		return Dependency("find verification token", err)
	}

	n, err := s.users.ConsumeVerificationToken(ctx, hash, now)
	if err != nil {
		return Dependency("consume verification token", err)
	}
	if n == 0 {
		s.metrics.Auth("verify_email", "invalid")
		return invalidToken()
	}
	s.metrics.Auth("verify_email", "ok")
	s.log.WithField("user_id", u.ID).Info("email verified")
	return nil
}

// Login checks a password and issues a token pair. Each failure carries its
// own code.
func (s *AuthService) Login(ctx context.Context, email, password string, remember bool) (Session, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, Validation("email and password are required")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.Auth("login", "not_found")
		return Session{}, newError(KindNotFound, CodeEmailNotFound, "email not found")
	}
	if err != nil {
		return Session{}, Dependency("load user", err)
	}
	if !u.HasPassword() {
		s.metrics.Auth("login", "oauth_only")
		return Session{}, newError(KindAuthentication, CodeOAuthOnly, "this account signs in with Google or Facebook")
	}
	if !utils.VerifyPassword(u.PasswordHash.String, password) {
		s.metrics.Auth("login", "bad_password")
		return Session{}, newError(KindAuthentication, CodeInvalidCredential, "incorrect password")
	}
	if !u.IsVerified {
		s.metrics.Auth("login", "unverified")
		return Session{}, &Error{Kind: KindAuthentication, Code: CodeUnverified,
			Message: "please verify your email before logging in", status: 403}
	}

	sess, err := s.issueSession(u, remember)
	if err != nil {
		return Session{}, err
	}
	s.metrics.Auth("login", "ok")
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "remember": remember}).Info("user logged in")
	return sess, nil
}

// OAuthLogin signs in a provider identity: an existing link wins, then a
// verified email merges into the matching account, otherwise a verified
// password-less user is provisioned. Sessions are always remember-me.
func (s *AuthService) OAuthLogin(ctx context.Context, ext ExternalIdentity) (Session, error) {
	if ext.Provider == "" || ext.Subject == "" {
		return Session{}, Unauthenticated(errors.New("provider returned no subject"))
	}
	u, err := s.resolveExternal(ctx, ext)
	if err != nil {
		return Session{}, err
	}
	sess, err := s.issueSession(u, true)
	if err != nil {
		return Session{}, err
	}
	s.metrics.Auth("oauth_login", "ok")
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "provider": ext.Provider}).Info("user logged in with provider")
	return sess, nil
}

func (s *AuthService) resolveExternal(ctx context.Context, ext ExternalIdentity) (model.User, error) {
	id, err := s.links.FindUserIDByLink(ctx, ext.Provider, ext.Subject)
	if err == nil {
		return s.userByID(ctx, id)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, Dependency("find provider link", err)
	}

	email := NormalizeEmail(ext.Email)
	if email == "" || !ext.EmailVerified {
		s.metrics.Auth("oauth_login", "unverified_email")
		return model.User{}, newError(KindAuthentication, "oauth_email_unverified",
			"your "+ext.Provider+" account has no verified email address")
	}

	existing, err := s.mergeByEmail(ctx, email, ext)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, err
	}

	id, err = s.links.ProvisionExternal(ctx, model.NewUser{
		Name:       strings.TrimSpace(ext.Name),
		Email:      email,
		Role:       model.RoleUser,
		IsVerified: true,
	}, ext.Provider, ext.Subject)
	if errors.Is(err, repository.ErrConflict) {
		// Lost a race: either a concurrent callback linked this identity
		// or a signup took the email.
		id, err = s.links.FindUserIDByLink(ctx, ext.Provider, ext.Subject)
		if errors.Is(err, repository.ErrNotFound) {
			existing, err = s.mergeByEmail(ctx, email, ext)
			if errors.Is(err, repository.ErrNotFound) {
				return model.User{}, Dependency("provision provider account", err)
			}
			return existing, err
		}
	}
	if err != nil {
		return model.User{}, Dependency("provision provider account", err)
	}
	return s.userByID(ctx, id)
}

// mergeByEmail links the identity to the account owning email. It returns
// repository.ErrNotFound untouched when no such account exists.
func (s *AuthService) mergeByEmail(ctx context.Context, email string, ext ExternalIdentity) (model.User, error) {
	existing, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, err
	}
	if err != nil {
		return model.User{}, Dependency("load user", err)
	}
	if err := s.links.Link(ctx, existing.ID, ext.Provider, ext.Subject); err != nil && !errors.Is(err, repository.ErrConflict) {
		return model.User{}, Dependency("link provider account", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": existing.ID, "provider": ext.Provider}).Info("provider account linked by email")
	return existing, nil
}

func (s *AuthService) userByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, Unauthenticated(err)
	}
	if err != nil {
		return model.User{}, Dependency("load user", err)
	}
	return u, nil
}

func (s *AuthService) issueSession(u model.User, remember bool) (Session, error) {
	id := token.Identity{ID: u.ID, Email: u.Email, Role: u.Role}
	access, err := s.tokens.Issue(token.Access, id, remember)
	if err != nil {
		return Session{}, Dependency("issue access token", err)
	}
	refresh, err := s.tokens.Issue(token.Refresh, id, remember)
	if err != nil {
		return Session{}, Dependency("issue refresh token", err)
	}
	return Session{Identity: id, Remember: remember, Access: access, Refresh: refresh}, nil
}

// ForgotPassword emails a reset link to password accounts. The result is
// the same whether or not the address is registered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return Validation("email address is not valid")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.Auth("forgot_password", "unknown")
		return nil
	}
	if err != nil {
		return Dependency("load user", err)
	}
	if !u.HasPassword() {
		s.metrics.Auth("forgot_password", "oauth_only")
		return nil
	}

	raw, hash, err := utils.GenerateSecureToken()
	if err != nil {
		return Dependency("generate reset token", err)
	}
	if _, err := s.users.SetResetToken(ctx, u.ID, hash, s.now().Add(s.opts.ResetTTL)); err != nil {
		return Dependency("store reset token", err)
	}
	s.dispatch(ctx, templateReset, u.ID, resetMessage(u.Email, s.link("/reset-password", "resetToken", raw)))
	s.metrics.Auth("forgot_password", "ok")
	return nil
}

// ResendVerification issues a new verification link for an unverified
// password account. Like ForgotPassword it never reveals whether the
// address exists.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return Validation("email address is not valid")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return Dependency("load user", err)
	}
	if u.IsVerified || !u.HasPassword() {
		return nil
	}
	return s.sendVerification(ctx, u.ID, u.Email)
}

// CheckResetToken reports whether a reset link is still usable, so the
// reset form is only shown for live tokens.
func (s *AuthService) CheckResetToken(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return invalidToken()
	}
	_, err := s.users.FindByResetTokenHash(ctx, utils.HashToken(raw), s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return invalidToken()
	}
	if err != nil {
		return Dependency("find reset token", err)
	}
	return nil
}

// ResetPassword replaces the password of the reset token's owner. Match,
// expiry check, update and token clear happen in one statement.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetInput) error {
	if verr := validateReset(in); verr != nil {
		return verr
	}
	hash, err := utils.HashPassword(in.Password, s.opts.BcryptCost)
	if err != nil {
		return Dependency("hash password", err)
	}

	n, err := s.users.UpdatePasswordByResetToken(ctx, utils.HashToken(strings.TrimSpace(in.Token)), hash, s.now())
	if err != nil {
		return Dependency("update password", err)
	}
	if n == 0 {
		s.metrics.Auth("reset_password", "invalid")
		return invalidToken()
	}
	s.metrics.Auth("reset_password", "ok")
	s.log.Info("password reset")
	return nil
}
