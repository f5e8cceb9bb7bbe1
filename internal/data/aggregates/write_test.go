package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/learnworld-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/learnworld-backend/internal/domain/aggregates"
	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/platform/dbctx"
)

type writeSignal struct {
	op  string
	err error
}

type writeRecorder struct {
	signals []writeSignal
}

func (r *writeRecorder) AfterWrite(op string, err error, _ time.Duration) {
	r.signals = append(r.signals, writeSignal{op: op, err: err})
}

func noTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return fn(dbctx.Context{Ctx: ctx})
}

func TestWriteReportsOutcome(t *testing.T) {
	rec := &writeRecorder{}
	deps := BaseDeps{InTx: noTx, Hooks: rec}.withDefaults()
	boom := errors.New("disk full")

	cases := []struct {
		op   string
		fn   func(dbctx.Context) error
		want string
	}{
		{op: "w.ok", fn: func(dbctx.Context) error { return nil }, want: "ok"},
		{op: "w.validation", fn: func(dbctx.Context) error { return ValidationError("missing title") }, want: "validation"},
		{op: "w.conflict", fn: func(dbctx.Context) error { return ConflictError("run in progress") }, want: "conflict"},
		{op: "w.persist", fn: func(dbctx.Context) error { return boom }, want: "persistence"},
	}
	for _, tc := range cases {
		_ = deps.write(context.Background(), tc.op, tc.fn)
	}
	if len(rec.signals) != len(cases) {
		t.Fatalf("signals: want=%d got=%d", len(cases), len(rec.signals))
	}
	for i, tc := range cases {
		got := rec.signals[i]
		if got.op != tc.op {
			t.Fatalf("signal %d op: want=%s got=%s", i, tc.op, got.op)
		}
		if outcome := writeOutcome(got.err); outcome != tc.want {
			t.Fatalf("signal %d outcome: want=%s got=%s", i, tc.want, outcome)
		}
	}
	if !errors.Is(rec.signals[3].err, boom) {
		t.Fatalf("persistence error lost its cause: %v", rec.signals[3].err)
	}
}

func TestWriteStampsOp(t *testing.T) {
	deps := BaseDeps{InTx: noTx}.withDefaults()
	err := deps.write(context.Background(), "Worlds.World.Test", func(dbctx.Context) error {
		return ConflictError("stale")
	})
	var aggErr *domainagg.Error
	if !errors.As(err, &aggErr) {
		t.Fatalf("want *aggregates.Error got=%T", err)
	}
	if aggErr.Op != "Worlds.World.Test" || aggErr.Code != domainagg.CodeConflict {
		t.Fatalf("stamped error: got=%+v", aggErr)
	}
	if !errors.Is(err, domainagg.ErrConflict) || errors.Is(err, domainagg.ErrNotFound) {
		t.Fatalf("sentinel matching: got=%v", err)
	}
}

func TestUpdateRunGuards(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	w := testutil.SeedWorld(t, ctx, tx, uuid.New(), worlds.StatusAnalyzing)
	ref := worlds.RunRef{WorldID: w.ID, OwnerID: w.OwnerID, RunID: w.RunID}
	next := map[string]any{"status": string(worlds.StatusDesigning)}

	foreign := ref
	foreign.RunID = uuid.New()
	if ok, err := updateRun(dbc, foreign, []worlds.Status{worlds.StatusAnalyzing}, next); err != nil || ok {
		t.Fatalf("foreign run: want=false,nil got=%v,%v", ok, err)
	}
	if ok, err := updateRun(dbc, ref, []worlds.Status{worlds.StatusPending}, next); err != nil || ok {
		t.Fatalf("wrong status: want=false,nil got=%v,%v", ok, err)
	}
	if ok, err := updateRun(dbc, ref, []worlds.Status{worlds.StatusAnalyzing}, next); err != nil || !ok {
		t.Fatalf("matching run: want=true,nil got=%v,%v", ok, err)
	}

	noRun := ref
	noRun.RunID = uuid.Nil
	if _, err := updateRun(dbc, noRun, []worlds.Status{worlds.StatusDesigning}, next); !domainagg.IsCode(MapError("op", err), domainagg.CodeValidation) {
		t.Fatalf("nil run_id: want validation got=%v", err)
	}
	if _, err := updateRun(dbctx.Context{Ctx: ctx}, ref, []worlds.Status{worlds.StatusDesigning}, next); err == nil {
		t.Fatalf("missing tx: want error")
	}
}
