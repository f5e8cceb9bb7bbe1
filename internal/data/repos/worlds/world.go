package worlds

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/platform/dbctx"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

type WorldRepo interface {
	Create(dbc dbctx.Context, w *domain.World) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.World, error)
	GetByOwnerAndID(dbc dbctx.Context, ownerID, id uuid.UUID) (*domain.World, error)
	ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*domain.World, error)
	ListStale(dbc dbctx.Context, olderThan time.Time, limit int) ([]*domain.World, error)
	Delete(dbc dbctx.Context, ownerID, id uuid.UUID) (bool, error)
}

type worldRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorldRepo(db *gorm.DB, baseLog *logger.Logger) WorldRepo {
	return &worldRepo{
		db:  db,
		log: baseLog.With("repo", "WorldRepo"),
	}
}

func (r *worldRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *worldRepo) Create(dbc dbctx.Context, w *domain.World) error {
	if w == nil {
		return errors.New("world is nil")
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.RunID == uuid.Nil {
		w.RunID = uuid.New()
	}
	return r.tx(dbc).Create(w).Error
}

// GetByID returns nil, nil when the row does not exist.
func (r *worldRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.World, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var w domain.World
	err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&w).Error
	if err != nil {
		return nil, err
	}
	if w.ID == uuid.Nil {
		return nil, nil
	}
	return &w, nil
}

func (r *worldRepo) GetByOwnerAndID(dbc dbctx.Context, ownerID, id uuid.UUID) (*domain.World, error) {
	if id == uuid.Nil || ownerID == uuid.Nil {
		return nil, nil
	}
	var w domain.World
	err := r.tx(dbc).Where("id = ? AND owner_id = ?", id, ownerID).Limit(1).Find(&w).Error
	if err != nil {
		return nil, err
	}
	if w.ID == uuid.Nil {
		return nil, nil
	}
	return &w, nil
}

// ListByOwner returns the newest worlds first. Source content is not loaded.
func (r *worldRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*domain.World, error) {
	out := []*domain.World{}
	if ownerID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	err := r.tx(dbc).
		Omit("source_content").
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListStale finds worlds stuck in a non-terminal status since before olderThan.
func (r *worldRepo) ListStale(dbc dbctx.Context, olderThan time.Time, limit int) ([]*domain.World, error) {
	out := []*domain.World{}
	if limit <= 0 {
		limit = 100
	}
	err := r.tx(dbc).
		Omit("source_content").
		Where("status IN ? AND updated_at < ?", domain.StatusStrings(domain.NonTerminal()), olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *worldRepo) Delete(dbc dbctx.Context, ownerID, id uuid.UUID) (bool, error) {
	if id == uuid.Nil || ownerID == uuid.Nil {
		return false, nil
	}
	res := r.tx(dbc).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&domain.World{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
