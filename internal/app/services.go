package app

import (
	"fmt"

	"gorm.io/gorm"

	dataagg "github.com/yungbote/learnworld-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/learnworld-backend/internal/domain/aggregates"
	"github.com/yungbote/learnworld-backend/internal/jobs/pipeline/world_generate"
	"github.com/yungbote/learnworld-backend/internal/jobs/pipeline/world_stale_sweep"
	"github.com/yungbote/learnworld-backend/internal/jobs/runtime"
	"github.com/yungbote/learnworld-backend/internal/jobs/worker"
	"github.com/yungbote/learnworld-backend/internal/observability"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/realtime"
	"github.com/yungbote/learnworld-backend/internal/services"
)

type Services struct {
	Auth         services.AuthService
	Worlds       services.WorldService
	Notifier     *services.WorldNotifier
	WorldAgg     domainagg.WorldAggregate
	JobWorker    *worker.Worker
	StaleSweeper *world_stale_sweep.Pipeline
	JobRegistry  *runtime.Registry
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients, hub *realtime.SSEHub) (Services, error) {
	log.Info("Wiring services...")

	auth, err := services.NewAuthService(log, cfg.JWTSecretKey)
	if err != nil {
		return Services{}, fmt.Errorf("init auth service: %w", err)
	}

	// Changes go through the bus so every API instance's hub sees them.
	emitter := services.HubEmitter(hub)
	if clients.Bus != nil {
		emitter = services.BusEmitter(clients.Bus, log)
	}
	notifier := services.NewWorldNotifier(log, emitter)

	worldAgg := dataagg.NewWorldAggregate(dataagg.WorldAggregateDeps{
		Base: dataagg.BaseDeps{
			DB:    db,
			Log:   log,
			Hooks: dataagg.NewObservabilityHooks(observability.Current()),
		},
		Worlds:   reposet.World,
		Modules:  reposet.WorldModule,
		Events:   reposet.WorldStatusEvent,
		Notifier: notifier,
	})

	generate := world_generate.New(
		log,
		reposet.World,
		reposet.WorldModule,
		worldAgg,
		clients.AI,
		clients.Assets,
		clients.Cover,
		world_generate.ConfigFromEnv(),
	)
	sweeper := world_stale_sweep.New(log, worldAgg, cfg.StaleRunAfter)
	registry, err := runtime.NewRegistry(generate, sweeper)
	if err != nil {
		return Services{}, fmt.Errorf("register job handlers: %w", err)
	}
	jobWorker := worker.NewWorker(log, registry, worker.ConfigFromEnv())

	worldService := services.NewWorldService(
		log,
		reposet.World,
		reposet.WorldModule,
		reposet.WorldStatusEvent,
		worldAgg,
		jobWorker,
		services.NewGenerationPermit(cfg.GenerationRatePerMinute),
	)

	return Services{
		Auth:         auth,
		Worlds:       worldService,
		Notifier:     notifier,
		WorldAgg:     worldAgg,
		JobWorker:    jobWorker,
		StaleSweeper: sweeper,
		JobRegistry:  registry,
	}, nil
}
