package world_stale_sweep

import (
	"context"
	"time"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/learnworld-backend/internal/domain/aggregates"
	"github.com/yungbote/learnworld-backend/internal/jobs/runtime"
	"github.com/yungbote/learnworld-backend/internal/observability"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

const (
	JobType = "world_stale_sweep"

	Detail = "generation interrupted; please start a new run"
)

// Pipeline fails runs that stopped making progress, e.g. after a process restart.
type Pipeline struct {
	log        *logger.Logger
	agg        domainagg.WorldAggregate
	staleAfter time.Duration
	now        func() time.Time
}

func New(baseLog *logger.Logger, agg domainagg.WorldAggregate, staleAfter time.Duration) *Pipeline {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Pipeline{
		log:        baseLog.With("job", JobType),
		agg:        agg,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (p *Pipeline) Type() string { return JobType }

func (p *Pipeline) Run(jc *runtime.Context) error {
	if jc == nil {
		return nil
	}
	_, err := p.Sweep(jc.Ctx)
	return err
}

// Sweep moves every run idle for longer than staleAfter to error.
func (p *Pipeline) Sweep(ctx context.Context) (int, error) {
	cutoff := p.now().UTC().Add(-p.staleAfter)
	n, err := p.agg.FailStale(ctx, cutoff, Detail)
	if n > 0 {
		observability.Current().AddStaleRunsSwept(n)
		p.log.Warn("failed stale runs", "count", n, "cutoff", cutoff)
	}
	if err != nil {
		p.log.Error("stale sweep failed", "error", err)
		return n, err
	}
	return n, nil
}

// Every submits a sweep job immediately and then on each tick until ctx is done.
func Every(ctx context.Context, log *logger.Logger, interval time.Duration, submit func(runtime.Job) error) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	fire := func() {
		if err := submit(runtime.NewJob(JobType, uuid.Nil, nil)); err != nil {
			log.Warn("could not schedule stale sweep", "error", err)
		}
	}
	go func() {
		fire()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fire()
			}
		}
	}()
}
