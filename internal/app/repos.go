package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/learnworld-backend/internal/data/repos"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

type Repos struct {
	World            repos.WorldRepo
	WorldModule      repos.WorldModuleRepo
	WorldStatusEvent repos.WorldStatusEventRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		World:            repos.NewWorldRepo(db, log),
		WorldModule:      repos.NewWorldModuleRepo(db, log),
		WorldStatusEvent: repos.NewWorldStatusEventRepo(db, log),
	}
}
