package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/shipping-auth/internal/config"
	"github.com/iliyamo/shipping-auth/internal/database"
	"github.com/iliyamo/shipping-auth/internal/handler"
	"github.com/iliyamo/shipping-auth/internal/job"
	"github.com/iliyamo/shipping-auth/internal/mail"
	"github.com/iliyamo/shipping-auth/internal/middleware"
	"github.com/iliyamo/shipping-auth/internal/oauth"
	"github.com/iliyamo/shipping-auth/internal/observability"
	"github.com/iliyamo/shipping-auth/internal/queue"
	"github.com/iliyamo/shipping-auth/internal/repository"
	"github.com/iliyamo/shipping-auth/internal/router"
	"github.com/iliyamo/shipping-auth/internal/service"
	"github.com/iliyamo/shipping-auth/internal/token"
)

func main() {
	// Runs after every other deferred cleanup.
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := observability.NewLogger(cfg.LogLevel, cfg.Env)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Env); err != nil {
		log.WithError(err).Warn("sentry disabled")
	}
	defer observability.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	db, err := database.Open(ctx, cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer db.Close()
	if cfg.RunMigrations {
		if err := database.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("migrations failed")
		}
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.WithField("addr", cfg.Redis.Addr).Warn("redis unreachable: rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	codec, err := token.NewCodec(token.Options{
		AccessSecret:  cfg.Tokens.AccessSecret,
		RefreshSecret: cfg.Tokens.RefreshSecret,
		Access:        token.Lifetimes{Default: cfg.Tokens.AccessTTL, Remember: cfg.Tokens.AccessRememberTTL},
		Refresh:       token.Lifetimes{Default: cfg.Tokens.RefreshTTL, Remember: cfg.Tokens.RefreshRememberTTL},
		Issuer:        cfg.Tokens.Issuer,
	})
	if err != nil {
		log.WithError(err).Fatal("token codec")
	}
	cookies := token.CookieOptions{Secure: cfg.Cookies.Secure, SameSite: cfg.Cookies.SameSite, Domain: cfg.Cookies.Domain}

	users := repository.NewUserRepo(db)
	links := repository.NewOAuthRepo(db)
	mailer := newMailer(ctx, cfg, log)

	auth := service.NewAuthService(users, links, mailer, codec, log, metrics, service.Options{
		BaseURL:    cfg.BaseURL,
		BcryptCost: cfg.BcryptCost,
		VerifyTTL:  cfg.EmailTokenTTL,
		ResetTTL:   cfg.ResetTokenTTL,
	})

	cleanup, err := job.NewCleanup(users, log, metrics).Schedule(cfg.CleanupSchedule)
	if err != nil {
		log.WithError(err).Fatal("cleanup schedule")
	}
	cleanup.Start()
	defer func() { <-cleanup.Stop().Done() }()

	providers := newProviders(ctx, cfg, log)
	renderer, err := handler.NewRenderer()
	if err != nil {
		log.WithError(err).Fatal("templates")
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(log, metrics))
	e.Use(echomw.Recover())

	authHandler := handler.NewAuthHandler(auth, cookies)
	userHandler := handler.NewUserHandler(users)
	deps := router.Deps{
		Auth:         authHandler,
		OAuth:        handler.NewOAuthHandler(authHandler, providers, log),
		Pages:        handler.NewPageHandler(auth, userHandler, providers.Names()),
		Users:        userHandler,
		Gate:         middleware.NewGate(codec, cookies, log, metrics, "/dashboard"),
		APILimiter:   middleware.NewRateLimiter("api", cfg.RateLimit, rdb, log, metrics),
		LoginLimiter: middleware.NewRateLimiter("login", cfg.LoginRateLimit, rdb, log, metrics),
		UserCache:    middleware.NewResponseCache(cfg.Cache, rdb, log),
		DB:           db,
		Registry:     reg,
	}
	router.RegisterRoutes(e, deps)
	router.RegisterPages(e, deps)
	router.RegisterAPI(e, deps)

	if err := serve(ctx, e, ":"+cfg.Port, log); err != nil {
		log.WithError(err).Error("server stopped")
		exitCode = 1
	}
}

// serve runs e until ctx is cancelled or the listener fails, then shuts it
// down gracefully. A listener failure is returned so deferred cleanup in
// main still runs.
func serve(ctx context.Context, e *echo.Echo, addr string, log logrus.FieldLogger) error {
	failed := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-failed:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := e.Shutdown(shutdownCtx); serr != nil {
		log.WithError(serr).Error("graceful shutdown failed")
	}
	return err
}

// newMailer picks the delivery path. With a broker configured, requests
// publish to the queue and a consumer in this process relays to SMTP.
func newMailer(ctx context.Context, cfg config.Config, log logrus.FieldLogger) service.Mailer {
	var deliver queue.Sender = mail.LogSender{Log: log}
	if cfg.SMTP.Host != "" {
		deliver = &mail.SMTPSender{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.User,
			Password: cfg.SMTP.Pass,
			From:     cfg.SMTP.From,
		}
	} else {
		log.Warn("SMTP_HOST not set: emails are logged, not sent")
	}

	if cfg.RabbitURL == "" {
		return deliver
	}
	go queue.StartEmailConsumer(ctx, cfg.RabbitURL, deliver, log)
	return queue.NewPublisher(cfg.RabbitURL, log)
}

func newProviders(ctx context.Context, cfg config.Config, log logrus.FieldLogger) oauth.Registry {
	var list []oauth.Provider
	if cfg.Google.Enabled() {
		g, err := oauth.NewGoogleProvider(ctx, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.BaseURL+"/auth/google/callback")
		if err != nil {
			log.WithError(err).Warn("google sign-in disabled")
		} else {
			list = append(list, g)
		}
	}
	if cfg.Facebook.Enabled() {
		list = append(list, oauth.NewFacebookProvider(cfg.Facebook.ClientID, cfg.Facebook.ClientSecret, cfg.BaseURL+"/auth/facebook/callback"))
	}
	return oauth.NewRegistry(list...)
}
