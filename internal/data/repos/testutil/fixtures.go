package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
)

func SeedWorld(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, status worlds.Status) *worlds.World {
	tb.Helper()
	w := &worlds.World{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		RunID:         uuid.New(),
		Title:         "Sterne",
		Subject:       "Astronomie",
		SourceContent: "Die Sonne ist ein Stern.",
		Status:        status,
	}
	if status == worlds.StatusError {
		msg := "seeded failure"
		w.ErrorDetail = &msg
	}
	if err := tx.WithContext(ctx).Create(w).Error; err != nil {
		tb.Fatalf("seed world: %v", err)
	}
	return w
}

func SeedModules(tb testing.TB, ctx context.Context, tx *gorm.DB, worldID uuid.UUID, n int) []*worlds.WorldModule {
	tb.Helper()
	out := make([]*worlds.WorldModule, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &worlds.WorldModule{
			ID:                 uuid.New(),
			WorldID:            worldID,
			OrderIndex:         i,
			Title:              "Modul",
			ModuleType:         worlds.ModuleKnowledge,
			InteractionPayload: datatypes.JSON([]byte(`{"kind":"text","text":"Die Sonne ist ein Stern."}`)),
		})
	}
	if n == 0 {
		return out
	}
	if err := tx.WithContext(ctx).Create(&out).Error; err != nil {
		tb.Fatalf("seed modules: %v", err)
	}
	return out
}
