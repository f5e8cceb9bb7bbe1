package worlds

import (
	"context"

	"github.com/google/uuid"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is one committed mutation of a world row, addressed to its owner.
type Change struct {
	Type    ChangeType
	OwnerID uuid.UUID
	Row     map[string]any
}

// ChangeNotifier receives committed world changes. Implementations must not block.
type ChangeNotifier interface {
	WorldChanged(ctx context.Context, ch Change)
}

// RunRef identifies one run of one world.
type RunRef struct {
	WorldID uuid.UUID
	OwnerID uuid.UUID
	RunID   uuid.UUID
}
