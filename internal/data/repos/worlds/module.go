package worlds

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/platform/dbctx"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

type WorldModuleRepo interface {
	CreateBatch(dbc dbctx.Context, modules []*domain.WorldModule) error
	ListByWorld(dbc dbctx.Context, worldID uuid.UUID) ([]*domain.WorldModule, error)
	CountByWorld(dbc dbctx.Context, worldID uuid.UUID) (int64, error)
	DeleteByWorld(dbc dbctx.Context, worldID uuid.UUID) error
	SetImageURL(dbc dbctx.Context, worldID, moduleID uuid.UUID, url string) (bool, error)
}

type worldModuleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorldModuleRepo(db *gorm.DB, baseLog *logger.Logger) WorldModuleRepo {
	return &worldModuleRepo{
		db:  db,
		log: baseLog.With("repo", "WorldModuleRepo"),
	}
}

func (r *worldModuleRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *worldModuleRepo) CreateBatch(dbc dbctx.Context, modules []*domain.WorldModule) error {
	if len(modules) == 0 {
		return nil
	}
	for _, m := range modules {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
	}
	return r.tx(dbc).Create(&modules).Error
}

func (r *worldModuleRepo) ListByWorld(dbc dbctx.Context, worldID uuid.UUID) ([]*domain.WorldModule, error) {
	out := []*domain.WorldModule{}
	if worldID == uuid.Nil {
		return out, nil
	}
	err := r.tx(dbc).
		Where("world_id = ?", worldID).
		Order("order_index ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *worldModuleRepo) CountByWorld(dbc dbctx.Context, worldID uuid.UUID) (int64, error) {
	var n int64
	err := r.tx(dbc).Model(&domain.WorldModule{}).Where("world_id = ?", worldID).Count(&n).Error
	return n, err
}

func (r *worldModuleRepo) DeleteByWorld(dbc dbctx.Context, worldID uuid.UUID) error {
	if worldID == uuid.Nil {
		return nil
	}
	return r.tx(dbc).Where("world_id = ?", worldID).Delete(&domain.WorldModule{}).Error
}

// SetImageURL reports false when the module no longer exists.
func (r *worldModuleRepo) SetImageURL(dbc dbctx.Context, worldID, moduleID uuid.UUID, url string) (bool, error) {
	res := r.tx(dbc).
		Model(&domain.WorldModule{}).
		Where("id = ? AND world_id = ?", moduleID, worldID).
		Update("image_url", url)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
