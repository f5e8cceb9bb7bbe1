package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/learnworld-backend/internal/data/repos/worlds"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

type WorldRepo = worlds.WorldRepo
type WorldModuleRepo = worlds.WorldModuleRepo
type WorldStatusEventRepo = worlds.WorldStatusEventRepo

func NewWorldRepo(db *gorm.DB, baseLog *logger.Logger) WorldRepo {
	return worlds.NewWorldRepo(db, baseLog)
}
func NewWorldModuleRepo(db *gorm.DB, baseLog *logger.Logger) WorldModuleRepo {
	return worlds.NewWorldModuleRepo(db, baseLog)
}
func NewWorldStatusEventRepo(db *gorm.DB, baseLog *logger.Logger) WorldStatusEventRepo {
	return worlds.NewWorldStatusEventRepo(db, baseLog)
}
