package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/learnworld-backend/internal/domain/aggregates"
	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/observability"
	"github.com/yungbote/learnworld-backend/internal/platform/dbctx"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

// Hooks sees every aggregate write once it has committed or rolled back.
// err is already mapped to an aggregate code.
type Hooks interface {
	AfterWrite(op string, err error, dur time.Duration)
}

type HooksFunc func(op string, err error, dur time.Duration)

func (f HooksFunc) AfterWrite(op string, err error, dur time.Duration) { f(op, err, dur) }

// NewObservabilityHooks records write latency by outcome and counts conflicts.
func NewObservabilityHooks(m *observability.Metrics) Hooks {
	if m == nil {
		return nil
	}
	return HooksFunc(func(op string, err error, dur time.Duration) {
		outcome := writeOutcome(err)
		m.ObserveAggregateOperation(op, outcome, dur)
		if outcome == string(domainagg.CodeConflict) {
			m.IncAggregateConflict(op)
		}
	})
}

// InTxFunc runs fn inside a single transaction.
type InTxFunc func(ctx context.Context, fn func(dbc dbctx.Context) error) error

type BaseDeps struct {
	DB    *gorm.DB
	Log   *logger.Logger
	Hooks Hooks
	// InTx defaults to a GORM transaction on DB.
	InTx InTxFunc
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.InTx == nil {
		d.InTx = gormTx(d.DB)
	}
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	return d
}

func gormTx(db *gorm.DB) InTxFunc {
	return func(ctx context.Context, fn func(dbc dbctx.Context) error) error {
		if db == nil {
			return ValidationError("aggregate has no database")
		}
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(dbctx.Context{Ctx: ctx, Tx: tx})
		})
	}
}

// write runs fn in a transaction, maps its error and reports it to the hooks.
func (d BaseDeps) write(ctx context.Context, op string, fn func(dbc dbctx.Context) error) error {
	start := time.Now()
	err := MapError(op, d.InTx(ctx, fn))
	if d.Hooks != nil {
		d.Hooks.AfterWrite(op, err, time.Since(start))
	}
	return err
}

func writeOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := domainagg.CodeOf(err); code != "" {
		return string(code)
	}
	return string(domainagg.CodePersistence)
}

// updateRun applies updates to the world row only while it still belongs to
// ref's run and is in one of the from statuses. false means the row was
// deleted, handed to a newer run or has already moved on.
func updateRun(dbc dbctx.Context, ref worlds.RunRef, from []worlds.Status, updates map[string]any) (bool, error) {
	if dbc.Tx == nil {
		return false, ValidationError("run update outside a transaction")
	}
	if ref.WorldID == uuid.Nil || ref.RunID == uuid.Nil {
		return false, ValidationError("world_id and run_id are required")
	}
	if len(from) == 0 {
		return false, ValidationError("no source status for run update")
	}
	res := dbc.Tx.WithContext(dbc.Ctx).
		Table(worldTable).
		Where("id = ? AND run_id = ? AND status IN ?", ref.WorldID, ref.RunID, worlds.StatusStrings(from)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
