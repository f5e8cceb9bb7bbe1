package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
)

// WorldAggregate owns world run invariants.
//
// Write method failures return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodePersistence.
// Guarded writes report applied=false instead of an error when the run no longer
// owns the row (deleted, superseded or already terminal).
type WorldAggregate interface {
	// Create inserts a new world in pending status with a fresh run.
	Create(ctx context.Context, in CreateWorldInput) (*worlds.World, error)

	// StartRun resets a terminal world into a fresh pending run.
	StartRun(ctx context.Context, ownerID, worldID uuid.UUID) (*worlds.World, error)

	// Transition moves the run one step forward along the status order.
	Transition(ctx context.Context, ref worlds.RunRef, to worlds.Status) (applied bool, err error)

	// Fail moves the run to error from any non-terminal status.
	Fail(ctx context.Context, ref worlds.RunRef, detail string) (applied bool, err error)

	// Finalize writes derived content and the full module batch in one transaction.
	// The row must be in finalizing for this run.
	Finalize(ctx context.Context, in FinalizeWorldInput) (applied bool, err error)

	// SetModuleImage records an illustration on one module of the run.
	SetModuleImage(ctx context.Context, ref worlds.RunRef, moduleID uuid.UUID, url string) (applied bool, err error)

	// SetCover records the rendered cover while the run is in images.
	SetCover(ctx context.Context, ref worlds.RunRef, url string) (applied bool, err error)

	// Delete removes the world with its modules and ledger.
	Delete(ctx context.Context, ownerID, worldID uuid.UUID) (deleted bool, err error)

	// FailStale moves runs idle since before olderThan to error. Returns the number moved.
	FailStale(ctx context.Context, olderThan time.Time, detail string) (int, error)
}

type CreateWorldInput struct {
	OwnerID       uuid.UUID
	Title         string
	Subject       string
	SourceContent string
}

type FinalizeWorldInput struct {
	Ref     worlds.RunRef
	Derived worlds.Derived
	Modules []*worlds.WorldModule
}
