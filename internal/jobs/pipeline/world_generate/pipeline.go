package world_generate

import (
	"time"

	"github.com/yungbote/learnworld-backend/internal/data/repos"
	domainagg "github.com/yungbote/learnworld-backend/internal/domain/aggregates"
	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/jobs/runtime"
	"github.com/yungbote/learnworld-backend/internal/modules/worldgen/media"
	"github.com/yungbote/learnworld-backend/internal/platform/aigateway"
	"github.com/yungbote/learnworld-backend/internal/platform/assets"
	"github.com/yungbote/learnworld-backend/internal/platform/envutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

const JobType = "world_generate"

type Config struct {
	MaxSourceChars   int
	MaxImages        int
	ImageConcurrency int
	ImageMaxSide     int
	PerImageTimeout  time.Duration
	// FailTimeout bounds the error write, which runs on a context detached from the run.
	FailTimeout time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		MaxSourceChars:   envutil.Int("WORLDGEN_MAX_SOURCE_CHARS", 30000),
		MaxImages:        envutil.Int("WORLDGEN_MAX_IMAGES", 4),
		ImageConcurrency: envutil.Int("WORLDGEN_IMAGE_CONCURRENCY", 2),
		ImageMaxSide:     envutil.Int("WORLDGEN_IMAGE_MAX_SIDE", 1024),
		PerImageTimeout:  envutil.Duration("WORLDGEN_IMAGE_TIMEOUT", 90*time.Second),
		FailTimeout:      10 * time.Second,
	}
}

type Pipeline struct {
	log     *logger.Logger
	worlds  repos.WorldRepo
	modules repos.WorldModuleRepo
	agg     domainagg.WorldAggregate
	ai      aigateway.Client
	assets  assets.Store
	cover   *media.CoverRenderer
	cfg     Config
}

func New(
	baseLog *logger.Logger,
	worldRepo repos.WorldRepo,
	moduleRepo repos.WorldModuleRepo,
	agg domainagg.WorldAggregate,
	ai aigateway.Client,
	store assets.Store,
	cover *media.CoverRenderer,
	cfg Config,
) *Pipeline {
	if store == nil {
		store = assets.NewNoneStore()
	}
	if cfg.FailTimeout <= 0 {
		cfg.FailTimeout = 10 * time.Second
	}
	return &Pipeline{
		log:     baseLog.With("job", JobType),
		worlds:  worldRepo,
		modules: moduleRepo,
		agg:     agg,
		ai:      ai,
		assets:  store,
		cover:   cover,
		cfg:     cfg,
	}
}

func (p *Pipeline) Type() string { return JobType }

// NewJob builds the job that drives one run. Request and trace ids ride along for log correlation.
func NewJob(ref worlds.RunRef, requestID, traceID string) runtime.Job {
	return runtime.NewJob(JobType, ref.OwnerID, map[string]any{
		"world_id":   ref.WorldID.String(),
		"owner_id":   ref.OwnerID.String(),
		"run_id":     ref.RunID.String(),
		"request_id": requestID,
		"trace_id":   traceID,
	})
}
