package worlds

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/platform/dbctx"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

type WorldStatusEventRepo interface {
	Append(dbc dbctx.Context, ev *domain.WorldStatusEvent) error
	ListByWorld(dbc dbctx.Context, worldID uuid.UUID) ([]*domain.WorldStatusEvent, error)
	ListByRun(dbc dbctx.Context, worldID, runID uuid.UUID) ([]*domain.WorldStatusEvent, error)
	DeleteByWorld(dbc dbctx.Context, worldID uuid.UUID) error
}

type worldStatusEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorldStatusEventRepo(db *gorm.DB, baseLog *logger.Logger) WorldStatusEventRepo {
	return &worldStatusEventRepo{
		db:  db,
		log: baseLog.With("repo", "WorldStatusEventRepo"),
	}
}

func (r *worldStatusEventRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *worldStatusEventRepo) Append(dbc dbctx.Context, ev *domain.WorldStatusEvent) error {
	return r.tx(dbc).Create(ev).Error
}

func (r *worldStatusEventRepo) ListByWorld(dbc dbctx.Context, worldID uuid.UUID) ([]*domain.WorldStatusEvent, error) {
	out := []*domain.WorldStatusEvent{}
	err := r.tx(dbc).Where("world_id = ?", worldID).Order("id ASC").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *worldStatusEventRepo) ListByRun(dbc dbctx.Context, worldID, runID uuid.UUID) ([]*domain.WorldStatusEvent, error) {
	out := []*domain.WorldStatusEvent{}
	err := r.tx(dbc).
		Where("world_id = ? AND run_id = ?", worldID, runID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *worldStatusEventRepo) DeleteByWorld(dbc dbctx.Context, worldID uuid.UUID) error {
	if worldID == uuid.Nil {
		return nil
	}
	return r.tx(dbc).Where("world_id = ?", worldID).Delete(&domain.WorldStatusEvent{}).Error
}
