package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flintapp/flint-core/internal/config"
	httpcontroller "github.com/flintapp/flint-core/internal/controller/http"
	"github.com/flintapp/flint-core/internal/database"
	convdao "github.com/flintapp/flint-core/internal/domain/conversation/dao"
	convEntity "github.com/flintapp/flint-core/internal/domain/conversation/entity"
	"github.com/flintapp/flint-core/internal/domain/conversation/policy"
	convservice "github.com/flintapp/flint-core/internal/domain/conversation/service"
	mediadao "github.com/flintapp/flint-core/internal/domain/media/dao"
	mediaservice "github.com/flintapp/flint-core/internal/domain/media/service"
	"github.com/flintapp/flint-core/internal/domain/upsell"
	"github.com/flintapp/flint-core/internal/httpx/upstream/identity"
	"github.com/flintapp/flint-core/internal/metrics"
	"github.com/flintapp/flint-core/internal/storage"
)

// App is the main application container
type App struct {
	cfg        config.Config
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	pg      *pgxpool.Pool
	store   *storage.EphemeralStore
	metrics *metrics.Set
	prompts *upsell.PromptStore

	conversationPolicy *policy.Policy
	mediaService       *mediaservice.Service

	sweeper *Sweeper
}

// NewApp creates and initializes the application
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Timeout(30 * time.Second))

	app := &App{
		cfg:     cfg,
		router:  r,
		logger:  logger,
		prompts: upsell.NewPromptStore(),
	}

	if err := app.initInfrastructure(ctx); err != nil {
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}

	if err := app.initDomains(ctx); err != nil {
		return nil, fmt.Errorf("initializing domains: %w", err)
	}

	app.registerRoutes()

	app.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// initInfrastructure initializes infrastructure components
func (a *App) initInfrastructure(ctx context.Context) error {
	pool, err := database.NewPostgresPool(ctx, a.cfg.Database.PostgresDSN, database.PoolConfig{
		MaxConns: a.cfg.Database.MaxConns,
		MinConns: a.cfg.Database.MinConns,
	})
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	a.pg = pool

	store, err := storage.NewEphemeralStore(storage.S3Config{
		Endpoint:        a.cfg.S3.Endpoint,
		AccessKeyID:     a.cfg.S3.AccessKeyID,
		SecretAccessKey: a.cfg.S3.SecretAccessKey,
		Bucket:          a.cfg.S3.Bucket,
		Region:          a.cfg.S3.Region,
		URLTTL:          a.cfg.S3.URLTTL,
	})
	if err != nil {
		return fmt.Errorf("initializing media storage: %w", err)
	}
	a.store = store

	a.metrics = metrics.New(prometheus.DefaultRegisterer)

	return nil
}

// initDomains initializes domain layers (DAO, Service, Policy)
func (a *App) initDomains(ctx context.Context) error {
	sessionRepo := convdao.NewSessionPostgres(a.pg)
	messageRepo := convdao.NewMessagePostgres(a.pg)

	convSvc := convservice.New(sessionRepo, messageRepo,
		convservice.WithInitialWindow(a.cfg.Conversation.InitialWindow),
		convservice.WithExtension(a.cfg.Conversation.ExtensionDuration),
		convservice.WithNotifier(&logNotifier{logger: a.logger}),
		convservice.WithMetrics(a.metrics),
	)

	idClient := identity.New(identity.WithBaseURL(a.cfg.Identity.BaseURL))
	a.conversationPolicy = policy.New(convSvc, idClient, a.prompts)

	eventSink := mediadao.NewEventPostgres(a.pg)
	a.mediaService = mediaservice.New(eventSink, a.store, a.logger,
		mediaservice.WithDefaultDuration(a.cfg.Media.DefaultViewDuration),
		mediaservice.WithMetrics(a.metrics),
	)

	if a.cfg.Sweeper.Enabled {
		a.sweeper = NewSweeper(convSvc, a.mediaService, SweeperConfig{
			Interval:   a.cfg.Sweeper.Interval,
			Lookback:   a.cfg.Sweeper.Lookback,
			BatchSize:  a.cfg.Sweeper.BatchSize,
			SessionTTL: a.cfg.Media.SessionTTL,
		}, a.logger)
	}

	return nil
}

// registerRoutes registers all HTTP routes
func (a *App) registerRoutes() {
	a.router.Get("/healthz", a.healthHandler)
	a.router.Get("/readyz", a.readyHandler)
	a.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	a.router.Route("/api/v1", func(r chi.Router) {
		convHandler := httpcontroller.NewConversationHandler(a.conversationPolicy, a.prompts)
		convHandler.RegisterRoutes(r)

		mediaHandler := httpcontroller.NewMediaHandler(a.mediaService, a.store)
		mediaHandler.RegisterRoutes(r)
	})
}

// healthHandler handles health check requests
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// readyHandler handles readiness check requests
func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.pg.Ping(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// Run starts the application and blocks until shutdown signal
func (a *App) Run(ctx context.Context) error {
	if a.sweeper != nil {
		a.sweeper.Start(ctx)
	}

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", "addr", a.cfg.Server.Address())
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("context cancelled")
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	if a.sweeper != nil {
		a.sweeper.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	if a.pg != nil {
		a.pg.Close()
	}

	a.logger.Info("shutdown complete")
	return nil
}

// logNotifier reports expiry events to the log until the real-time push
// channel is wired in.
type logNotifier struct {
	logger *slog.Logger
}

func (n *logNotifier) SessionExpired(ctx context.Context, sess convEntity.ConversationSession) {
	n.logger.Info("conversation window expired", "match_id", sess.MatchID, "window_end", sess.WindowEnd)
}
