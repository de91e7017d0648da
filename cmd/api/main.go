// Package main is the entrypoint for the CodeDuck API server.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/codeduck/codeduck/internal/auth"
	"github.com/codeduck/codeduck/internal/cache"
	"github.com/codeduck/codeduck/internal/clock"
	"github.com/codeduck/codeduck/internal/config"
	"github.com/codeduck/codeduck/internal/handler"
	"github.com/codeduck/codeduck/internal/metrics"
	"github.com/codeduck/codeduck/internal/middleware"
	"github.com/codeduck/codeduck/internal/migrations"
	"github.com/codeduck/codeduck/internal/model"
	"github.com/codeduck/codeduck/internal/provider"
	"github.com/codeduck/codeduck/internal/provider/github"
	"github.com/codeduck/codeduck/internal/provider/openrouter"
	"github.com/codeduck/codeduck/internal/quota"
	"github.com/codeduck/codeduck/internal/repository"
	"github.com/codeduck/codeduck/internal/server"
	"github.com/codeduck/codeduck/internal/service"
)

func main() {
	ctx := context.Background()

	// A .env file is optional; the process environment always wins.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if cfg.AutoMigrate {
		if err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
			logger.Error("failed to run migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			os.Exit(1)
		}
		logger.Info("database migrations applied")
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.PoolConfig{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL, cfg.RedisPoolSize)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	var (
		recorder    metrics.Recorder = metrics.NewNoop()
		snapshotter metrics.Snapshotter
	)
	if cfg.MetricsEnabled {
		inMemory := metrics.NewInMemory()
		recorder, snapshotter = inMemory, inMemory
	}

	app, err := buildApp(cfg, repo, cacheClient, recorder, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	r := setupRouter(cfg, app, repo, cacheClient, recorder, snapshotter, logger)

	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	srv.OnShutdown("postgres", func(ctx context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(ctx context.Context) error {
		return cacheClient.Close()
	})

	logger.Info("services initialized",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"github_configured", cfg.GitHubConfigured(),
		"ai_model", cfg.OpenRouterModel,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// app holds the wired services and their HTTP handlers.
type app struct {
	tokens   *auth.TokenIssuer
	accounts *handler.AccountHandler
	ai       *handler.AIHandler
	github   *handler.GitHubHandler
}

func buildApp(cfg *config.Config, repo *repository.Repository, cacheClient *cache.Cache, recorder metrics.Recorder, logger *slog.Logger) (*app, error) {
	loc, err := cfg.QuotaLocation()
	if err != nil {
		return nil, err
	}
	policy, err := quota.NewPolicy(quota.Limits{
		model.TierFree: cfg.QuotaFreeDaily,
		model.TierPro:  cfg.QuotaProDaily,
	})
	if err != nil {
		return nil, err
	}

	httpClient := provider.NewHTTPClient()

	if cfg.OpenRouterAPIKey == "" {
		logger.Warn("OPENROUTER_AI_API_KEY is not set; explain requests will fail upstream")
	}
	explainer := openrouter.New(cfg.OpenRouterAPIKey,
		openrouter.WithHTTPClient(httpClient),
		openrouter.WithBaseURL(cfg.OpenRouterBaseURL),
		openrouter.WithModel(cfg.OpenRouterModel),
	)

	if !cfg.GitHubConfigured() {
		logger.Warn("GitHub OAuth credentials are not set; account linking will fail upstream")
	}
	gh := github.New(github.Config{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		RedirectURI:  cfg.GitHubRedirectURI,
		OAuthBaseURL: cfg.GitHubOAuthBaseURL,
		APIBaseURL:   cfg.GitHubAPIBaseURL,
	}, httpClient)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)

	accountSvc := service.NewAccountService(repo, cacheClient, tokens, cfg.SessionCacheTTL, recorder, logger)
	explainSvc := service.NewExplainService(repo, explainer, policy, clock.NewCalendar(clock.System(), loc), cfg.AITimeout, recorder, logger)
	linker := service.NewLinker(gh, repo, recorder, logger)
	githubSvc := service.NewGitHubService(linker, gh, cacheClient, cfg.RepoCacheTTL, recorder, logger)

	return &app{
		tokens:   tokens,
		accounts: handler.NewAccountHandler(accountSvc, logger),
		ai:       handler.NewAIHandler(explainSvc, accountSvc, logger),
		github:   handler.NewGitHubHandler(linker, githubSvc, gh, logger),
	}, nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	cfg *config.Config,
	a *app,
	repo *repository.Repository,
	cacheClient *cache.Cache,
	recorder metrics.Recorder,
	snapshotter metrics.Snapshotter,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	h := handler.New(cfg.AppEnv)
	healthHandler := handler.NewHealthHandler(repo, cacheClient, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/", h.Hello)
	r.Get("/health", h.Health)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	if snapshotter != nil {
		r.Get("/metrics", handler.NewMetricsHandler(snapshotter).Metrics)
	}

	sessionCfg := middleware.SessionConfig{Logger: logger, Tokens: a.tokens}
	requireSession := middleware.RequireSession(sessionCfg)

	userLimit := middleware.RateLimitUser(middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: cacheClient,
		Metrics: recorder,
		Enabled: cfg.RateLimitAPIEnabled,
		RPM:     cfg.RateLimitAPIRPM,
		Burst:   cfg.RateLimitAPIBurst,
	})
	ipLimit := middleware.RateLimitIP(middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: cacheClient,
		Metrics: recorder,
		Enabled: cfg.RateLimitAuthEnabled,
		RPM:     cfg.RateLimitAuthRPM,
		Burst:   cfg.RateLimitAuthBurst,
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.With(ipLimit).Post("/register", a.accounts.Register)
		r.With(ipLimit).Post("/login", a.accounts.Login)
		r.With(requireSession).Get("/me", a.accounts.Me)
	})

	r.Route("/api/ai", func(r chi.Router) {
		r.Use(requireSession)
		r.Use(userLimit)
		r.Post("/explain", a.ai.Explain)
		r.Get("/usage", a.ai.Usage)
		r.Get("/history", a.ai.History)
	})

	r.Route("/api/github", func(r chi.Router) {
		r.Get("/auth", a.github.AuthURL)
		// The linker reports a missing session itself.
		r.With(middleware.OptionalSession(sessionCfg)).Get("/callback", a.github.Callback)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Use(userLimit)
			r.Get("/repos", a.github.Repos)
			r.Route("/repos/{owner}/{repo}", func(r chi.Router) {
				r.Use(middleware.ValidateRepoParams)
				r.Get("/contents", a.github.Contents)
				r.Get("/contents/*", a.github.Contents)
				r.Get("/issues", a.github.Issues)
			})
		})
	})

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
