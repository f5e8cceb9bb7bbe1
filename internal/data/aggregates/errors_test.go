package aggregates

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/learnworld-backend/internal/domain/aggregates"
)

func TestMapErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want domainagg.ErrorCode
	}{
		{"validation", ValidationError("bad input"), domainagg.CodeValidation},
		{"conflict", ConflictError("stale"), domainagg.CodeConflict},
		{"record not found", gorm.ErrRecordNotFound, domainagg.CodeNotFound},
		{"pg unique", &pgconn.PgError{Code: "23505", Message: "duplicate"}, domainagg.CodeConflict},
		{"sqlite unique", errors.New("UNIQUE constraint failed: world_module.world_id, world_module.order_index"), domainagg.CodeConflict},
		{"driver failure", errors.New("connection reset by peer"), domainagg.CodePersistence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := MapError("op", tc.in)
			if got := domainagg.CodeOf(err); got != tc.want {
				t.Fatalf("code: want=%q got=%q (%v)", tc.want, got, err)
			}
		})
	}
}

func TestMapErrorKeepsStampedError(t *testing.T) {
	in := domainagg.NewError(domainagg.CodeNotFound, "op", "missing", errors.New("boom"))
	if out := MapError("other", in); out != in {
		t.Fatalf("stamped error: want passthrough got=%v", out)
	}
}

func TestMapErrorStampsOpOnce(t *testing.T) {
	out := MapError("Worlds.World.Create", ValidationError("title is required"))
	if got := out.Error(); got != "Worlds.World.Create: title is required [validation]" {
		t.Fatalf("message: got=%q", got)
	}
	if !errors.Is(out, domainagg.ErrValidation) {
		t.Fatalf("errors.Is validation: want=true got=false")
	}
}

func TestMapErrorNil(t *testing.T) {
	if err := MapError("op", nil); err != nil {
		t.Fatalf("nil: want=nil got=%v", err)
	}
}
