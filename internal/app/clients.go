package app

import (
	"context"
	"fmt"

	"github.com/yungbote/learnworld-backend/internal/data/db"
	"github.com/yungbote/learnworld-backend/internal/modules/worldgen/media"
	"github.com/yungbote/learnworld-backend/internal/platform/aigateway"
	"github.com/yungbote/learnworld-backend/internal/platform/assets"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/realtime/bus"
)

type Clients struct {
	AI     aigateway.Client
	Assets assets.Store
	Bus    bus.Bus
	Cover  *media.CoverRenderer
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, database *db.DatabaseService) (Clients, error) {
	log.Info("Wiring clients...")

	ai, err := aigateway.NewClient(log, aigateway.ConfigFromEnv())
	if err != nil {
		return Clients{}, fmt.Errorf("init ai gateway client: %w", err)
	}

	store, err := resolveAssetStore(ctx, log, cfg)
	if err != nil {
		return Clients{}, err
	}

	cover, err := media.NewCoverRenderer(cfg.CoverFontPath)
	if err != nil {
		return Clients{}, fmt.Errorf("init cover renderer: %w", err)
	}

	busCfg := bus.ConfigFromEnv()
	if busCfg.Kind == bus.KindPostgres && busCfg.PostgresDSN == "" && database.Driver() == db.DriverPostgres {
		busCfg.PostgresDSN = database.DSN()
	}
	b, err := bus.New(ctx, log, busCfg)
	if err != nil {
		return Clients{}, fmt.Errorf("init realtime bus: %w", err)
	}
	log.Info("Realtime bus selected", "kind", busCfg.Kind)

	return Clients{
		AI:     ai,
		Assets: store,
		Bus:    b,
		Cover:  cover,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
