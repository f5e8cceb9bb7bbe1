package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/learnworld-backend/internal/data/repos"
	domainagg "github.com/yungbote/learnworld-backend/internal/domain/aggregates"
	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/jobs/pipeline/world_generate"
	"github.com/yungbote/learnworld-backend/internal/jobs/runtime"
	"github.com/yungbote/learnworld-backend/internal/platform/ctxutil"
	"github.com/yungbote/learnworld-backend/internal/platform/dbctx"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

var (
	ErrGenerationRateLimited = errors.New("generation rate limit exceeded")
	ErrWorldNotFound         = errors.New("world not found")
)

const scheduleFailedDetail = "generation could not be scheduled; please start a new run"

// JobSubmitter hands a job to the background worker without waiting for it.
type JobSubmitter interface {
	Submit(job runtime.Job) error
}

type StartWorldInput struct {
	Title         string
	Subject       string
	SourceContent string
}

type WorldDetail struct {
	World   *worlds.World
	Modules []*worlds.WorldModule
}

type WorldService interface {
	// Start creates a pending world and schedules its first run.
	Start(ctx context.Context, ownerID uuid.UUID, in StartWorldInput) (*worlds.World, error)
	// Regenerate starts a new run on a complete or errored world.
	Regenerate(ctx context.Context, ownerID, worldID uuid.UUID) (*worlds.World, error)
	List(ctx context.Context, ownerID uuid.UUID, limit int) ([]*worlds.World, error)
	Get(ctx context.Context, ownerID, worldID uuid.UUID) (*WorldDetail, error)
	Modules(ctx context.Context, ownerID, worldID uuid.UUID) ([]*worlds.WorldModule, error)
	Events(ctx context.Context, ownerID, worldID uuid.UUID) ([]*worlds.WorldStatusEvent, error)
	Delete(ctx context.Context, ownerID, worldID uuid.UUID) error
}

type worldService struct {
	log        *logger.Logger
	worldRepo  repos.WorldRepo
	moduleRepo repos.WorldModuleRepo
	eventRepo  repos.WorldStatusEventRepo
	agg        domainagg.WorldAggregate
	jobs       JobSubmitter
	permit     GenerationPermit
}

func NewWorldService(
	log *logger.Logger,
	worldRepo repos.WorldRepo,
	moduleRepo repos.WorldModuleRepo,
	eventRepo repos.WorldStatusEventRepo,
	agg domainagg.WorldAggregate,
	jobs JobSubmitter,
	permit GenerationPermit,
) WorldService {
	if permit == nil {
		permit = AllowAllPermit{}
	}
	return &worldService{
		log:        log.With("service", "WorldService"),
		worldRepo:  worldRepo,
		moduleRepo: moduleRepo,
		eventRepo:  eventRepo,
		agg:        agg,
		jobs:       jobs,
		permit:     permit,
	}
}

func (s *worldService) Start(ctx context.Context, ownerID uuid.UUID, in StartWorldInput) (*worlds.World, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, "Worlds.Start", "title is required", nil)
	}
	if strings.TrimSpace(in.SourceContent) == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, "Worlds.Start", "source_content is required", nil)
	}
	if !s.permit.Allow(ownerID) {
		return nil, ErrGenerationRateLimited
	}
	w, err := s.agg.Create(ctx, domainagg.CreateWorldInput{
		OwnerID:       ownerID,
		Title:         in.Title,
		Subject:       in.Subject,
		SourceContent: in.SourceContent,
	})
	if err != nil {
		return nil, err
	}
	s.schedule(ctx, w)
	return w, nil
}

func (s *worldService) Regenerate(ctx context.Context, ownerID, worldID uuid.UUID) (*worlds.World, error) {
	if !s.permit.Allow(ownerID) {
		return nil, ErrGenerationRateLimited
	}
	w, err := s.agg.StartRun(ctx, ownerID, worldID)
	if err != nil {
		if domainagg.IsCode(err, domainagg.CodeNotFound) {
			return nil, ErrWorldNotFound
		}
		return nil, err
	}
	s.schedule(ctx, w)
	return w, nil
}

// schedule never fails the request: a run that cannot be queued is recorded as
// an error on the world so the caller observes it like any other failed run.
func (s *worldService) schedule(ctx context.Context, w *worlds.World) {
	ref := worlds.RunRef{WorldID: w.ID, OwnerID: w.OwnerID, RunID: w.RunID}
	traceID, requestID := ctxutil.TraceIDs(ctx)
	err := s.jobs.Submit(world_generate.NewJob(ref, requestID, traceID))
	if err == nil {
		s.log.Info("world generation scheduled", "world_id", w.ID, "run_id", w.RunID, "owner_id", w.OwnerID)
		return
	}
	s.log.Error("world generation could not be scheduled", "world_id", w.ID, "run_id", w.RunID, "error", err)
	if _, ferr := s.agg.Fail(context.WithoutCancel(ctx), ref, scheduleFailedDetail); ferr != nil {
		s.log.Error("recording schedule failure failed", "world_id", w.ID, "error", ferr)
		return
	}
	detail := scheduleFailedDetail
	w.Status = worlds.StatusError
	w.ErrorDetail = &detail
}

func (s *worldService) List(ctx context.Context, ownerID uuid.UUID, limit int) ([]*worlds.World, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	out, err := s.worldRepo.ListByOwner(dbctx.Background(ctx), ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list worlds: %w", err)
	}
	return out, nil
}

func (s *worldService) owned(ctx context.Context, ownerID, worldID uuid.UUID) (*worlds.World, error) {
	w, err := s.worldRepo.GetByOwnerAndID(dbctx.Background(ctx), ownerID, worldID)
	if err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}
	if w == nil {
		return nil, ErrWorldNotFound
	}
	return w, nil
}

func (s *worldService) Get(ctx context.Context, ownerID, worldID uuid.UUID) (*WorldDetail, error) {
	w, err := s.owned(ctx, ownerID, worldID)
	if err != nil {
		return nil, err
	}
	mods, err := s.moduleRepo.ListByWorld(dbctx.Background(ctx), w.ID)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return &WorldDetail{World: w, Modules: mods}, nil
}

func (s *worldService) Modules(ctx context.Context, ownerID, worldID uuid.UUID) ([]*worlds.WorldModule, error) {
	w, err := s.owned(ctx, ownerID, worldID)
	if err != nil {
		return nil, err
	}
	mods, err := s.moduleRepo.ListByWorld(dbctx.Background(ctx), w.ID)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return mods, nil
}

func (s *worldService) Events(ctx context.Context, ownerID, worldID uuid.UUID) ([]*worlds.WorldStatusEvent, error) {
	w, err := s.owned(ctx, ownerID, worldID)
	if err != nil {
		return nil, err
	}
	evs, err := s.eventRepo.ListByWorld(dbctx.Background(ctx), w.ID)
	if err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	return evs, nil
}

func (s *worldService) Delete(ctx context.Context, ownerID, worldID uuid.UUID) error {
	deleted, err := s.agg.Delete(ctx, ownerID, worldID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrWorldNotFound
	}
	return nil
}
