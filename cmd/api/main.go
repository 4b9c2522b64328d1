// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/courseware/internal/auth"
	"github.com/carterperez-dev/courseware/internal/config"
	"github.com/carterperez-dev/courseware/internal/core"
	"github.com/carterperez-dev/courseware/internal/health"
	"github.com/carterperez-dev/courseware/internal/identity"
	"github.com/carterperez-dev/courseware/internal/mail"
	"github.com/carterperez-dev/courseware/internal/metrics"
	"github.com/carterperez-dev/courseware/internal/middleware"
	"github.com/carterperez-dev/courseware/internal/oauth"
	"github.com/carterperez-dev/courseware/internal/server"
	"github.com/carterperez-dev/courseware/internal/session"
	"github.com/carterperez-dev/courseware/internal/user"
	"github.com/carterperez-dev/courseware/internal/verification"
)

const (
	drainDelay = 5 * time.Second

	googleCookiePath = "/v1/auth/google"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	telemetry, err := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
	if err != nil {
		logger.Warn("failed to initialize telemetry", "error", err)
	} else if telemetry.Enabled() {
		logger.Info("OpenTelemetry tracer initialized",
			"endpoint", cfg.Otel.Endpoint,
		)
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}()
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := redis.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}()
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	m := metrics.New()
	m.WatchPools(db.DB.DB, redis.PoolStats)

	sessions, err := session.Open(ctx, redis, session.Config{
		CookieName: cfg.Session.CookieName,
		Secret:     cfg.Session.Secret,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.Secure,
	})
	if err != nil {
		return err
	}
	defer sessions.Close() //nolint:errcheck // always nil

	hasher, err := core.NewPasswordHasher(
		cfg.Hashing.Cost,
		cfg.Hashing.MaxConcurrency,
	)
	if err != nil {
		return err
	}

	mailer, closeMailer, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return err
	}
	defer closeMailer()

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(userRepo)
	userHandler := user.NewHandler(userSvc)

	denylist := auth.NewDenylist(redis.Client)
	jwtManager, err := auth.NewJWTManager(cfg.JWT, denylist)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "HS256",
		"access_token_expire", cfg.JWT.AccessTokenExpire,
	)

	authSvc := auth.NewService(auth.ServiceConfig{
		Users:  userSvc,
		Hasher: hasher,
		Issuer: verification.NewIssuer(
			userRepo,
			verification.WithTTL(cfg.Verification.CodeTTL),
		),
		Mailer:   mailer,
		Resolver: identity.NewResolver(userSvc, logger),
		Tokens:   jwtManager,
		Revoker:  denylist,
		Metrics:  m,
		Logger:   logger,
	})

	google := oauth.NewGoogle(oauth.GoogleConfig{
		ClientID:     cfg.OAuth.Google.ClientID,
		ClientSecret: cfg.OAuth.Google.ClientSecret,
		RedirectURL:  cfg.OAuth.Google.RedirectURL,
		StateSecret:  cfg.Session.Secret,
		CookiePath:   googleCookiePath,
		Secure:       cfg.Session.Secure,
	})

	authHandler := auth.NewHandler(auth.HandlerConfig{
		Service:         authSvc,
		Google:          google,
		SuccessRedirect: cfg.OAuth.Google.SuccessRedirect,
		FailureRedirect: cfg.OAuth.Google.FailureRedirect,
		Logger:          logger,
	})

	healthHandler := health.NewHandler(
		health.Check{Name: "database", Checker: db},
		health.Check{Name: "redis", Checker: redis},
	)

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.Logger(logger))
	router.Use(m.Middleware)
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			FailOpen: true,
			Observer: m,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))
	router.Use(middleware.Gate(middleware.GateConfig{
		Sessions:   sessions,
		Principals: userSvc,
		Tokens:     jwtManager,
		Logger:     logger,
	}))

	healthHandler.RegisterRoutes(router)

	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, m.Handler())
	}

	strict := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit: middleware.PerMinute(
			cfg.RateLimit.AuthRequests,
			cfg.RateLimit.AuthBurst,
		),
		Name:     "auth",
		KeyFunc:  middleware.KeyByIPAndEndpoint,
		Observer: m,
	}).Handler

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, strict)
		userHandler.RegisterRoutes(
			r,
			middleware.RequireSession,
			middleware.RequireToken,
		)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	logger.Info("application stopped")
	return nil
}

func newMailer(
	cfg config.MailConfig,
	logger *slog.Logger,
) (mail.Sender, func(), error) {
	if cfg.Driver != config.MailDriverAMQP {
		logger.Info("mail driver initialized", "driver", config.MailDriverLog)
		return mail.WithTimeout(mail.NewLogSender(logger), cfg.Timeout),
			func() {}, nil
	}

	sender, err := mail.NewAMQPSender(mail.AMQPConfig{
		URL:        cfg.AMQPURL,
		Exchange:   cfg.Exchange,
		RoutingKey: cfg.RoutingKey,
		From:       cfg.From,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("mail driver initialized",
		"driver", config.MailDriverAMQP,
		"exchange", cfg.Exchange,
	)

	closeFn := func() {
		if err := sender.Close(); err != nil {
			logger.Error("mail sender close error", "error", err)
		}
	}
	return mail.WithTimeout(sender, cfg.Timeout), closeFn, nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
