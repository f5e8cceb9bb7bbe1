package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/yungbote/learnworld-backend/internal/data/db"
	"github.com/yungbote/learnworld-backend/internal/http"
	"github.com/yungbote/learnworld-backend/internal/jobs/pipeline/world_stale_sweep"
	"github.com/yungbote/learnworld-backend/internal/observability"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *http.Server
	Cfg      Config
	Repos    Repos
	Services Services
	Clients  Clients
	SSEHub   *realtime.SSEHub

	database     *db.DatabaseService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	_ = godotenv.Load()

	cfg := LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	observability.Init(log)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	database, err := db.NewDatabaseService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.Migrate(database.DB()); err != nil {
		_ = database.Close()
		log.Sync()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	theDB := database.DB()

	clients, err := wireClients(ctx, log, cfg, database)
	if err != nil {
		_ = database.Close()
		log.Sync()
		return nil, err
	}

	ssehub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, clients, ssehub)
	if err != nil {
		clients.Close()
		_ = database.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, serviceset, ssehub, database)
	middleware := wireMiddleware(log, serviceset)
	server := wireServer(log, cfg, handlerset, middleware)
	// Open feeds would otherwise hold http.Server.Shutdown until the grace period runs out.
	server.OnShutdown(ssehub.Stop)

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       server,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Clients:      clients,
		SSEHub:       ssehub,
		database:     database,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background work: the bus forwarder, the job worker and the stale-run sweep.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			return fmt.Errorf("start realtime forwarder: %w", err)
		}
	}

	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start()
		if a.Cfg.StaleRunAfter > 0 {
			world_stale_sweep.Every(ctx, a.Log, a.Cfg.SweepInterval(), a.Services.JobWorker.Submit)
		}
	}
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
	return a.Server.Run()
}

// Shutdown stops accepting requests, drains in-flight runs within the grace
// period, then releases the bus, tracing and database.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.SSEHub != nil {
		a.SSEHub.Stop()
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.JobWorker != nil {
		drainCtx, cancel := context.WithTimeout(ctx, a.Cfg.ShutdownGrace)
		if err := a.Services.JobWorker.Shutdown(drainCtx); err != nil {
			errs = append(errs, fmt.Errorf("worker shutdown: %w", err))
		}
		cancel()
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		otelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(otelCtx); err != nil {
			errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
		}
		cancel()
	}
	if a.database != nil {
		if err := a.database.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db close: %w", err))
		}
	}
	if a.Log != nil {
		a.Log.Info("Shutdown complete")
		a.Log.Sync()
	}
	return errors.Join(errs...)
}
