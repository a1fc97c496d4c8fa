package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"task-manager/internal/auth"
	"task-manager/internal/config"
	"task-manager/internal/database"
	"task-manager/internal/event"
	"task-manager/internal/handler"
	"task-manager/internal/middleware"
	"task-manager/internal/repository"
	"task-manager/internal/repository/memory"
	"task-manager/internal/router"
	"task-manager/internal/service"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg     *config.Config
	server  *http.Server
	db      *database.DB
	bus     *event.InMemoryBus
	auth    *service.AuthService
	audit   *service.AuditService
	sweeper *service.TokenSweeper
}

type stores struct {
	users  service.UserStore
	tokens service.RefreshLedger
	tasks  service.TaskStore
	audit  service.AuditStore
	pinger handler.Pinger
}

// New wires every component for cfg. With the postgres driver it connects
// and migrates before returning.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{cfg: cfg, bus: event.NewBus()}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost, cfg.HashConcurrency)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize password hasher: %w", err)
	}
	signer, err := auth.NewTokenSigner(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize token signer: %w", err)
	}

	a.auth = service.NewAuthService(st.users, st.tokens, hasher, signer, a.bus)
	a.audit = service.NewAuditService(st.audit)
	a.sweeper = service.NewTokenSweeper(st.tokens)
	taskService := service.NewTaskService(st.tasks)

	if cfg.AdminEmail != "" {
		if _, err := a.auth.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to bootstrap admin: %w", err)
		}
	}

	handler.SetErrorDetails(!cfg.IsProduction())

	appRouter := router.New(
		cfg,
		middleware.NewAuthMiddleware(signer),
		handler.NewHealthHandler(st.pinger),
		handler.NewAuthHandler(a.auth),
		handler.NewTaskHandler(taskService),
		handler.NewUserHandler(a.auth),
		handler.NewAuditHandler(a.audit),
	)

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory stores; data is lost on restart")
		return stores{
			users:  memory.NewUserStore(),
			tokens: memory.NewTokenLedger(),
			tasks:  memory.NewTaskStore(),
			audit:  memory.NewAuditStore(),
		}, nil
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns)
	if err != nil {
		return stores{}, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return stores{}, fmt.Errorf("failed to migrate database: %w", err)
	}
	a.db = db
	slog.Info("database ready")

	return stores{
		users:  repository.NewUserRepository(db.Pool),
		tokens: repository.NewTokenRepository(db.Pool),
		tasks:  repository.NewTaskRepository(db.Pool),
		audit:  repository.NewAuditRepository(db.Pool),
		pinger: db,
	}, nil
}

// Handler exposes the routed handler chain.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// stops the background workers.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	events, unsubscribe := a.bus.Subscribe()
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		a.audit.Consume(workerCtx, events)
	}()
	go a.sweeper.Start(workerCtx, a.cfg.TokenSweepInterval)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-serveErr:
		runErr = fmt.Errorf("server failed: %w", runErr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			runErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	unsubscribe()
	<-auditDone
	stopWorkers()
	a.Close()

	if runErr == nil {
		slog.Info("server stopped")
	}
	return runErr
}

func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}
