package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"hrpayroll/internal/domain/audit"
	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/platform/config"
	cryptoutil "hrpayroll/internal/platform/crypto"
	"hrpayroll/internal/platform/db"
	"hrpayroll/internal/platform/jobs"
	"hrpayroll/internal/platform/logging"
	"hrpayroll/internal/platform/metrics"
	"hrpayroll/internal/transport/http/api"
	audithandler "hrpayroll/internal/transport/http/handlers/audit"
	payrollhandler "hrpayroll/internal/transport/http/handlers/payroll"
	"hrpayroll/internal/transport/http/middleware"
)

type App struct {
	Config config.Config
	DB     *db.Pool
	Router http.Handler
	Jobs   *jobs.Service
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router is assembled from.
type Deps struct {
	Config      config.Config
	DB          Pinger
	Logger      *slog.Logger
	Metrics     *metrics.Collector
	Perms       middleware.PermissionStore
	Payroll     payrollhandler.RecordService
	Idempotency payrollhandler.IdempotencyStore
	Audit       audithandler.EventSource
	History     payrollhandler.HistorySource
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	crypto, err := cryptoutil.New(cfg.DataEncryptionKey)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("data encryption key: %w", err)
	}

	auditService := audit.New(pool)
	payrollService := payroll.NewService(payroll.NewStore(pool), auditService, payroll.Options{
		Crypto:                   crypto,
		PayslipDir:               cfg.PayslipDir,
		DefaultExperienceRateTRY: cfg.ExperienceRateTRY,
	})

	idempotency := middleware.NewIdempotencyStore(pool, cfg.IdempotencyTTL)
	maintenance := jobs.New(pool)
	maintenance.Schedule(jobs.JobIdempotencyPrune, cfg.MaintenanceInterval, func(ctx context.Context) (any, error) {
		deleted, err := idempotency.Prune(ctx)
		return map[string]any{"deleted": deleted}, err
	})
	if cfg.PayslipRetentionDays > 0 {
		maintenance.Schedule(jobs.JobPayslipPrune, cfg.MaintenanceInterval, func(context.Context) (any, error) {
			cutoff := time.Now().AddDate(0, 0, -cfg.PayslipRetentionDays)
			removed, err := payrollService.PruneArchive(cutoff)
			return map[string]any{"removed": removed, "cutoff": cutoff}, err
		})
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
	}

	router := NewRouter(Deps{
		Config:      cfg,
		DB:          pool,
		Logger:      logger,
		Metrics:     collector,
		Perms:       auth.NewStaticPermissions(auth.RolePermissions),
		Payroll:     payrollService,
		Idempotency: idempotency,
		Audit:       auditService,
		History:     auditService,
	})

	return &App{Config: cfg, DB: pool, Router: router, Jobs: maintenance}, nil
}

func (a *App) Close() {
	if a != nil && a.DB != nil {
		a.DB.Close()
	}
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(deps.Logger, deps.Metrics))
	router.Use(chimw.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.DB == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := deps.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if deps.Metrics != nil {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, deps.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.MutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

		payrollHandler := payrollhandler.NewHandler(deps.Payroll, deps.Perms, deps.Idempotency, deps.History, deps.Metrics)
		payrollHandler.RegisterRoutes(r)

		if deps.Audit != nil {
			auditHandler := audithandler.NewHandler(deps.Audit, deps.Perms)
			auditHandler.RegisterRoutes(r)
		}
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.Fail(w, http.StatusNotFound, "not_found", "route not found", middleware.GetRequestID(r.Context()))
	})

	return router
}

func Run() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()
	app.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("payroll server listening", "addr", cfg.Addr, "env", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "err", err)
		}
		slog.Info("payroll server stopped")
	}
}
