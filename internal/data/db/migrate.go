package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// =========================
		// Worlds
		// =========================
		&worlds.World{},
		&worlds.WorldModule{},
		&worlds.WorldStatusEvent{},
	)
}

// EnsureWorldIndexes adds the composite indexes the list and sweep queries rely on.
// Statements are portable between postgres and sqlite.
func EnsureWorldIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_world_owner_created
		ON world (owner_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_world_owner_created: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_world_status_updated
		ON world (status, updated_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_world_status_updated: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_world_status_event_world_id_seq
		ON world_status_event (world_id, id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_world_status_event_world_id_seq: %w", err)
	}
	return nil
}

func Migrate(db *gorm.DB) error {
	if err := AutoMigrateAll(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsureWorldIndexes(db)
}
