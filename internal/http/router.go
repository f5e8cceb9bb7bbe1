package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/learnworld-backend/internal/http/handlers"
	httpMW "github.com/yungbote/learnworld-backend/internal/http/middleware"
	"github.com/yungbote/learnworld-backend/internal/observability"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

const feedRoute = "/api/worlds/feed"

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AllowedOrigins []string
	LocalAssetDir  string

	AuthMiddleware  *httpMW.AuthMiddleware
	WorldHandler    *httpH.WorldHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.RequestContext(cfg.Log))
	r.Use(httpMW.CORS(cfg.AllowedOrigins...))
	r.Use(httpMW.Metrics(cfg.Metrics, feedRoute))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	if cfg.LocalAssetDir != "" {
		r.Static("/assets", cfg.LocalAssetDir)
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/worlds/feed", cfg.RealtimeHandler.WorldFeed)
		}

		// Worlds
		if cfg.WorldHandler != nil {
			protected.POST("/worlds/generate", cfg.WorldHandler.Generate)
			protected.GET("/worlds", cfg.WorldHandler.List)
			protected.GET("/worlds/:id", cfg.WorldHandler.Get)
			protected.GET("/worlds/:id/modules", cfg.WorldHandler.Modules)
			protected.GET("/worlds/:id/events", cfg.WorldHandler.Events)
			protected.POST("/worlds/:id/regenerate", cfg.WorldHandler.Regenerate)
			protected.DELETE("/worlds/:id", cfg.WorldHandler.Delete)
		}
	}

	return r
}
