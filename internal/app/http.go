package app

import (
	"context"

	"github.com/yungbote/learnworld-backend/internal/data/db"
	"github.com/yungbote/learnworld-backend/internal/http"
	httpH "github.com/yungbote/learnworld-backend/internal/http/handlers"
	httpMW "github.com/yungbote/learnworld-backend/internal/http/middleware"
	"github.com/yungbote/learnworld-backend/internal/observability"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	World    *httpH.WorldHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, services Services, sseHub *realtime.SSEHub, database *db.DatabaseService) Handlers {
	log.Info("Wiring handlers...")
	ping := func(ctx context.Context) error {
		sqlDB, err := database.DB().DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return Handlers{
		Health:   httpH.NewHealthHandler(ping, services.JobWorker.Queued),
		World:    httpH.NewWorldHandler(log, services.Worlds),
		Realtime: httpH.NewRealtimeHandler(log, sseHub),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *http.Server {
	routerCfg := http.RouterConfig{
		Log:             log,
		Metrics:         observability.Current(),
		AllowedOrigins:  cfg.AllowedOrigins,
		AuthMiddleware:  middleware.Auth,
		WorldHandler:    handlers.World,
		RealtimeHandler: handlers.Realtime,
		HealthHandler:   handlers.Health,
	}
	if observability.TracingEnabled() {
		routerCfg.ServiceName = cfg.ServiceName
	}
	if cfg.AssetStorage == AssetStorageLocal {
		routerCfg.LocalAssetDir = cfg.LocalAssetDir
	}
	return http.NewServer(":"+cfg.Port, routerCfg)
}
