package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"payrun/internal/domain/audit"
	"payrun/internal/domain/auth"
	"payrun/internal/domain/directory"
	"payrun/internal/domain/notifications"
	"payrun/internal/domain/payroll"
	"payrun/internal/domain/reports"
	"payrun/internal/platform/config"
	"payrun/internal/platform/crypto"
	"payrun/internal/platform/db"
	"payrun/internal/platform/documents"
	"payrun/internal/platform/email"
	"payrun/internal/platform/gateway"
	"payrun/internal/platform/jobs"
	"payrun/internal/platform/metrics"
	"payrun/internal/platform/statutory"
	"payrun/internal/transport/http/api"
	audithandler "payrun/internal/transport/http/handlers/audit"
	notificationshandler "payrun/internal/transport/http/handlers/notifications"
	payrollhandler "payrun/internal/transport/http/handlers/payroll"
	reportshandler "payrun/internal/transport/http/handlers/reports"
	"payrun/internal/transport/http/middleware"
)

const jobDrainTimeout = 10 * time.Second

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Router  http.Handler
	Jobs    *jobs.Service
	Metrics *metrics.Collector
	Payroll *payroll.Service

	cancel context.CancelFunc
}

type employeeDirectory interface {
	payroll.Directory
	db.EmployeeWriter
}

// New builds the application graph. With STORAGE_DRIVER=memory nothing
// touches a database and every store lives in process.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cryptoSvc, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption setup: %w", err)
	}
	files, err := documents.NewDiskStore(cfg.DocumentsDir, cryptoSvc)
	if err != nil {
		return nil, fmt.Errorf("documents dir: %w", err)
	}

	app := &App{Config: cfg}

	var (
		store        payroll.StoreAPI
		history      statutory.History
		employees    employeeDirectory
		deliveries   notifications.StoreAPI
		reportsStore *reports.Store
	)
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		app.DB = pool
		if cfg.RunMigrations {
			if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		pgStore := payroll.NewStore(pool)
		store, history = pgStore, pgStore
		employees = directory.NewStore(pool, cryptoSvc)
		deliveries = notifications.NewStore(pool)
		reportsStore = reports.NewStore(pool)
	default:
		memStore := payroll.NewMemoryStore()
		store, history = memStore, memStore
		employees = directory.NewMemory()
		deliveries = notifications.NewMemoryStore()
	}

	if cfg.RunSeed {
		if err := db.Seed(ctx, employees); err != nil {
			app.closePool()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	var paymentGateway payroll.Gateway
	if cfg.GatewayBaseURL != "" {
		paymentGateway = gateway.New(gateway.Config{
			BaseURL:  cfg.GatewayBaseURL,
			APIKey:   cfg.GatewayAPIKey,
			Currency: cfg.Currency,
			Timeout:  cfg.GatewayTimeout,
		})
	}

	// Background work outlives individual requests but stops with Close.
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	app.cancel = cancel
	app.Jobs = jobs.New(app.DB, cfg.JobQueueSize)
	app.Jobs.Start(workerCtx)

	notifier := notifications.New(deliveries, email.New(cfg), cfg.EmailFrom, cfg.CompanyName)
	app.Payroll = payroll.NewService(payroll.Dependencies{
		Store:     store,
		Directory: employees,
		Engine: statutory.New(history, statutory.Options{
			VarianceThreshold: cfg.FraudVarianceThreshold,
			LookbackRuns:      cfg.FraudLookbackRuns,
		}),
		Gateway:       paymentGateway,
		Renderer:      documents.NewRenderer(cfg.CompanyName),
		Files:         files,
		Notifier:      notifier,
		Jobs:          app.Jobs,
		Currency:      cfg.Currency,
		EngineTimeout: cfg.EngineTimeout,
	})
	app.Metrics = metrics.New()

	auditSvc := audit.New(app.DB)
	idempotency := middleware.NewIdempotencyStore(app.DB)
	perms := auth.StaticPermissions{}
	stats := reports.NewService(app.Payroll.Runs, app.Payroll.Summaries, employees, app.Payroll, cfg.Currency)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(app.Metrics))
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.PayrollMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := app.Payroll.Ping(ctx); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.With(middleware.RequirePermission(auth.PermReportsRead, perms)).Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, app.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		payrollHandler := payrollhandler.NewHandler(app.Payroll, auditSvc, idempotency, app.Metrics, perms)
		payrollHandler.RegisterRoutes(r)

		reportsHandler := reportshandler.NewHandler(app.Payroll.Exports, stats, reportsStore, app.Jobs, auditSvc, perms)
		reportsHandler.RegisterRoutes(r)

		notificationsHandler := notificationshandler.NewHandler(notifier, perms)
		notificationsHandler.RegisterRoutes(r)

		auditHandler := audithandler.NewHandler(auditSvc, perms)
		auditHandler.RegisterRoutes(r)
	})

	app.Router = router
	return app, nil
}

// Close drains queued jobs for a bounded time, then stops the worker and
// releases the pool.
func (a *App) Close() {
	if a.Jobs != nil {
		done := make(chan struct{})
		go func() {
			a.Jobs.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(jobDrainTimeout):
			log.Printf("job drain timed out after %s", jobDrainTimeout)
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.closePool()
}

func (a *App) closePool() {
	if a.DB != nil {
		a.DB.Close()
	}
}

func Run() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("payroll server listening on %s (storage=%s)", cfg.Addr, cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Printf("server failed: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown failed: %v", err)
	}
}
