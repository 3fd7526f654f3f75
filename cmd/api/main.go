package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carmarket/server/internal/access"
	"github.com/carmarket/server/internal/auth"
	"github.com/carmarket/server/internal/config"
	"github.com/carmarket/server/internal/db"
	httphandler "github.com/carmarket/server/internal/http"
	"github.com/carmarket/server/internal/http/handlers"
	"github.com/carmarket/server/internal/logging"
	"github.com/carmarket/server/internal/metrics"
	"github.com/carmarket/server/internal/middleware"
	"github.com/carmarket/server/internal/repo"
	"github.com/carmarket/server/internal/security/password"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	userRepo := repo.NewUserRepo(database)
	orderRepo := repo.NewOrderRepo(database)

	hasher, err := password.New(password.Config{
		Algorithm:  cfg.PasswordHasher,
		BcryptCost: cfg.BcryptCost,
	})
	if err != nil {
		return err
	}

	grants := access.DefaultGrants()
	if cfg.GrantsFile != "" {
		if grants, err = access.LoadGrantsFile(cfg.GrantsFile); err != nil {
			return err
		}
		log.Info("loaded grant table", "file", cfg.GrantsFile, "grants", len(grants))
	}
	evaluator, err := access.NewEvaluator(grants)
	if err != nil {
		return err
	}

	engineOpts := []auth.EngineOption{
		auth.WithSender(auth.LogSender{Log: log, ShowCode: cfg.DevMode}),
		auth.WithEngineLogger(log),
		auth.WithEngineMetrics(m),
	}
	for p, pol := range cfg.CodePolicies() {
		engineOpts = append(engineOpts, auth.WithPolicy(p, pol))
	}
	codes := auth.NewVerificationEngine(userRepo, cfg.CodeSalt, engineOpts...)
	authService := auth.NewService(userRepo, hasher, codes, log, m)
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL)

	// IP limiter: 20 auth requests per 10 min; code sends and checks are limited per identifier.
	ipLimiter := middleware.NewRateLimiter(10*time.Minute, 20)
	codeLimiter := middleware.NewRateLimiter(cfg.CodeRequestWindow, cfg.CodeRequestsPerWindow)
	attemptLimiter := middleware.NewRateLimiter(cfg.CodeRequestWindow, cfg.CodeAttemptsPerWindow)

	router := httphandler.NewRouter(httphandler.Deps{
		Auth:      handlers.NewAuthHandler(authService, jwtService, log),
		Users:     handlers.NewUserHandler(authService, jwtService, codeLimiter, attemptLimiter, log),
		Orders:    handlers.NewOrderHandler(orderRepo, log),
		Health:    handlers.NewHealthHandler(database),
		JWT:       jwtService,
		UserRepo:  userRepo,
		OrderRepo: orderRepo,
		Evaluator: evaluator,
		Metrics:   m,
		Log:       log,
		IPLimiter: ipLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "dev_mode", cfg.DevMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server exited")
	return nil
}
