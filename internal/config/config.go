// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// one or more environment variables.
type Config struct {
	Env           string // application environment (dev, test, prod)
	Port          string // HTTP port to listen on
	BaseURL       string // public origin used in emailed links and OAuth redirects
	LogLevel      string
	DB            DBConfig
	RunMigrations bool

	Tokens        TokenConfig
	Cookies       CookieConfig
	BcryptCost    int
	EmailTokenTTL time.Duration // verification link lifetime
	ResetTokenTTL time.Duration // password reset link lifetime

	SentryDSN       string
	RabbitURL       string // empty sends email inline instead of through the queue
	SMTP            SMTPConfig
	Google          OAuthClient
	Facebook        OAuthClient
	CleanupSchedule string // cron spec for pruning unverified accounts

	RateLimit      RateLimitConfig
	LoginRateLimit RateLimitConfig
	Cache          CacheConfig
	Redis          RedisConfig
}

type DBConfig struct {
	User string
	Pass string // optional
	Host string
	Port string
	Name string
}

// TokenConfig carries the two signing secrets and the four lifetimes.
type TokenConfig struct {
	AccessSecret       string
	RefreshSecret      string
	AccessTTL          time.Duration
	AccessRememberTTL  time.Duration
	RefreshTTL         time.Duration
	RefreshRememberTTL time.Duration
	Issuer             string
}

type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// OAuthClient is a provider registration. A provider without a client id is
// not offered.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

func (c OAuthClient) Enabled() bool { return c.ClientID != "" && c.ClientSecret != "" }

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it. All problems are reported in one error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	l := &loader{}
	cfg := Config{
		Env:      envStr("APP_ENV", "dev"),
		Port:     l.required("APP_PORT"),
		BaseURL:  strings.TrimRight(l.required("BASE_URL"), "/"),
		LogLevel: envStr("LOG_LEVEL", "info"),
		DB: DBConfig{
			User: l.required("DB_USER"),
			Pass: envStr("DB_PASS", ""),
			Host: l.required("DB_HOST"),
			Port: l.required("DB_PORT"),
			Name: l.required("DB_NAME"),
		},
		RunMigrations: l.boolean("RUN_MIGRATIONS", true),
		Tokens: TokenConfig{
			AccessSecret:       l.required("ACCESS_TOKEN_SECRET"),
			RefreshSecret:      l.required("REFRESH_TOKEN_SECRET"),
			AccessTTL:          l.duration("ACCESS_TOKEN_TTL", 5*time.Minute),
			AccessRememberTTL:  l.duration("ACCESS_TOKEN_REMEMBER_TTL", 15*time.Minute),
			RefreshTTL:         l.duration("REFRESH_TOKEN_TTL", 12*time.Hour),
			RefreshRememberTTL: l.duration("REFRESH_TOKEN_REMEMBER_TTL", 15*24*time.Hour),
			Issuer:             envStr("TOKEN_ISSUER", ""),
		},
		Cookies: CookieConfig{
			Secure: l.boolean("COOKIE_SECURE", false),
			Domain: envStr("COOKIE_DOMAIN", ""),
		},
		BcryptCost:      l.integer("BCRYPT_COST", 12),
		EmailTokenTTL:   l.duration("EMAIL_TOKEN_TTL", time.Hour),
		ResetTokenTTL:   l.duration("RESET_TOKEN_TTL", time.Hour),
		SentryDSN:       envStr("SENTRY_DSN", ""),
		RabbitURL:       envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),
		CleanupSchedule: envStr("CLEANUP_SCHEDULE", "@every 20m"),
		SMTP: SMTPConfig{
			Host: envStr("SMTP_HOST", ""),
			Port: l.integer("SMTP_PORT", 587),
			User: envStr("SMTP_USER", ""),
			Pass: envStr("SMTP_PASS", ""),
			From: envStr("MAIL_FROM", "no-reply@localhost"),
		},
		Google: OAuthClient{
			ClientID:     envStr("GOOGLE_CLIENT_ID", ""),
			ClientSecret: envStr("GOOGLE_CLIENT_SECRET", ""),
		},
		Facebook: OAuthClient{
			ClientID:     envStr("FACEBOOK_CLIENT_ID", ""),
			ClientSecret: envStr("FACEBOOK_CLIENT_SECRET", ""),
		},
		RateLimit:      LoadRateLimitConfig(),
		LoginRateLimit: LoadLoginRateLimitConfig(),
		Cache:          LoadCacheConfig(),
		Redis:          LoadRedisConfig(),
	}

	sameSite, err := ParseSameSite(envStr("COOKIE_SAMESITE", "lax"))
	if err != nil {
		l.fail(err)
	}
	cfg.Cookies.SameSite = sameSite

	t := cfg.Tokens
	if t.AccessSecret != "" && t.AccessSecret == t.RefreshSecret {
		l.fail(errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if t.AccessRememberTTL < t.AccessTTL || t.RefreshRememberTTL < t.RefreshTTL {
		l.fail(errors.New("remember-me token lifetimes must not be shorter than the defaults"))
	}

	if err := l.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseSameSite accepts "lax" or "strict". Auth cookies are never sent
// cross-site, so "none" is rejected.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	default:
		return http.SameSiteLaxMode, fmt.Errorf("invalid COOKIE_SAMESITE %q: want lax or strict", s)
	}
}
