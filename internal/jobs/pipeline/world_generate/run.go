package world_generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	domainagg "github.com/yungbote/learnworld-backend/internal/domain/aggregates"
	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/jobs/runtime"
	"github.com/yungbote/learnworld-backend/internal/modules/worldgen/steps"
	"github.com/yungbote/learnworld-backend/internal/observability"
	"github.com/yungbote/learnworld-backend/internal/platform/aigateway"
	"github.com/yungbote/learnworld-backend/internal/platform/dbctx"
)

const maxErrorDetail = 1000

// errSuperseded means the run no longer owns the row: it was deleted, restarted or failed elsewhere.
var errSuperseded = errors.New("run superseded")

// OptionalPhaseFailure wraps an error from a best-effort phase. It is logged, never persisted.
type OptionalPhaseFailure struct {
	Phase string
	Err   error
}

func (e *OptionalPhaseFailure) Error() string {
	return fmt.Sprintf("optional phase %s failed: %v", e.Phase, e.Err)
}

func (e *OptionalPhaseFailure) Unwrap() error { return e.Err }

func (p *Pipeline) Run(jc *runtime.Context) error {
	if jc == nil {
		return nil
	}
	worldID, ok1 := jc.PayloadUUID("world_id")
	ownerID, ok2 := jc.PayloadUUID("owner_id")
	runID, ok3 := jc.PayloadUUID("run_id")
	if !ok1 || !ok2 || !ok3 {
		return fmt.Errorf("world_generate: payload requires world_id, owner_id and run_id")
	}
	_, err := p.Execute(jc.Ctx, worlds.RunRef{WorldID: worldID, OwnerID: ownerID, RunID: runID})
	return err
}

// Execute drives one run from pending to a terminal status and returns the last status it wrote.
// Required phase failures are persisted as error and returned; a superseded run stops quietly.
func (p *Pipeline) Execute(ctx context.Context, ref worlds.RunRef) (final worlds.Status, err error) {
	ctx, span := observability.StartSpan(ctx, "world_generate.run",
		attribute.String("world_id", ref.WorldID.String()),
		attribute.String("run_id", ref.RunID.String()),
	)
	log := p.log.With("world_id", ref.WorldID.String(), "run_id", ref.RunID.String())
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("world_generate panic", "panic", r)
			err = fmt.Errorf("internal error during generation")
			final = p.fail(ctx, ref, err)
		}
		if errors.Is(err, errSuperseded) {
			log.Info("world_generate stopped; run superseded", "status", final)
			observability.Current().IncRunOutcome("superseded")
			err = nil
		} else if final == "" {
			observability.Current().IncRunOutcome("unrecorded")
		} else {
			observability.Current().IncRunOutcome(string(final))
		}
		log.Info("world_generate finished", "status", final, "duration_ms", time.Since(start).Milliseconds())
		observability.EndSpan(span, err)
	}()

	w, err := p.worlds.GetByID(dbctx.Context{Ctx: ctx}, ref.WorldID)
	if err != nil {
		return "", fmt.Errorf("world_generate: load world: %w", err)
	}
	if w == nil || w.RunID != ref.RunID || w.Status != worlds.StatusPending {
		status := worlds.Status("")
		if w != nil {
			status = w.Status
		}
		return status, errSuperseded
	}
	final = worlds.StatusPending
	source := steps.TruncateSource(w.SourceContent, p.cfg.MaxSourceChars)

	// analyzing
	if final, err = p.advance(ctx, ref, worlds.StatusAnalyzing, final); err != nil {
		return final, err
	}
	var analysis steps.AnalyzeOutput
	err = p.phase(ctx, "analyze", func(ctx context.Context) (err error) {
		analysis, err = steps.Analyze(ctx, steps.AnalyzeDeps{Log: log, AI: p.ai}, steps.AnalyzeInput{
			Title:         w.Title,
			Subject:       w.Subject,
			SourceContent: source,
		})
		return err
	})
	if err != nil {
		return p.fail(ctx, ref, err), err
	}

	// designing
	if final, err = p.advance(ctx, ref, worlds.StatusDesigning, final); err != nil {
		return final, err
	}
	var design steps.DesignOutput
	err = p.phase(ctx, "design", func(ctx context.Context) (err error) {
		design, err = steps.Design(ctx, steps.DesignDeps{Log: log, AI: p.ai}, steps.DesignInput{
			Title:    w.Title,
			Analysis: analysis,
		})
		return err
	})
	if err != nil {
		return p.fail(ctx, ref, err), err
	}

	// generating
	if final, err = p.advance(ctx, ref, worlds.StatusGenerating, final); err != nil {
		return final, err
	}
	var content steps.ContentOutput
	err = p.phase(ctx, "content", func(ctx context.Context) (err error) {
		content, err = steps.GenerateContent(ctx, steps.ContentDeps{Log: log, AI: p.ai}, steps.ContentInput{
			SourceContent: source,
			Design:        design,
		})
		return err
	})
	if err != nil {
		return p.fail(ctx, ref, err), err
	}

	// generating_component (optional)
	if final, err = p.advance(ctx, ref, worlds.StatusGeneratingComponent, final); err != nil {
		return final, err
	}
	var componentCode *string
	err = p.phase(ctx, "component", func(ctx context.Context) error {
		code, err := steps.GenerateComponentCode(ctx, steps.ComponentDeps{Log: log, AI: p.ai}, steps.ComponentInput{
			Design:  design,
			Content: content,
		})
		if err != nil {
			return err
		}
		componentCode = &code
		return nil
	})
	if err != nil {
		log.Warn("world_generate optional phase failed", "error", &OptionalPhaseFailure{Phase: "component", Err: err})
	}

	// finalizing
	if final, err = p.advance(ctx, ref, worlds.StatusFinalizing, final); err != nil {
		return final, err
	}
	err = p.phase(ctx, "finalize", func(ctx context.Context) error {
		derived, err := buildDerived(analysis, design, componentCode)
		if err != nil {
			return err
		}
		rows, err := content.Rows()
		if err != nil {
			return err
		}
		applied, err := p.agg.Finalize(ctx, domainagg.FinalizeWorldInput{Ref: ref, Derived: derived, Modules: rows})
		if err != nil {
			return err
		}
		if !applied {
			return errSuperseded
		}
		return nil
	})
	if errors.Is(err, errSuperseded) {
		return final, err
	}
	if err != nil {
		return p.fail(ctx, ref, err), err
	}

	// images (optional)
	if final, err = p.advance(ctx, ref, worlds.StatusImages, final); err != nil {
		return final, err
	}
	err = p.phase(ctx, "images", func(ctx context.Context) error {
		mods, err := p.modules.ListByWorld(dbctx.Context{Ctx: ctx}, ref.WorldID)
		if err != nil {
			return err
		}
		out, err := steps.GenerateImages(ctx, steps.ImagesDeps{
			Log:    log,
			AI:     p.ai,
			Assets: p.assets,
			Sink:   p.agg,
			Cover:  p.cover,
		}, steps.ImagesInput{
			Ref:             ref,
			Title:           w.Title,
			Subject:         w.Subject,
			Design:          design,
			Modules:         mods,
			MaxImages:       p.cfg.MaxImages,
			Concurrency:     p.cfg.ImageConcurrency,
			MaxSide:         p.cfg.ImageMaxSide,
			PerImageTimeout: p.cfg.PerImageTimeout,
		})
		if err != nil {
			return err
		}
		log.Info("world_generate images done",
			"attempted", out.Attempted,
			"stored", out.Stored,
			"failed", out.Failed,
			"skipped", out.Skipped,
			"cover", out.CoverURL != "",
		)
		return nil
	})
	if err != nil {
		log.Warn("world_generate optional phase failed", "error", &OptionalPhaseFailure{Phase: "images", Err: err})
	}

	// complete
	if final, err = p.advance(ctx, ref, worlds.StatusComplete, final); err != nil {
		return final, err
	}
	return final, nil
}

// advance writes the next status. A persistence failure fails the run; a rejected CAS means superseded.
func (p *Pipeline) advance(ctx context.Context, ref worlds.RunRef, to, current worlds.Status) (worlds.Status, error) {
	applied, err := p.agg.Transition(ctx, ref, to)
	if err != nil {
		return p.fail(ctx, ref, err), err
	}
	if !applied {
		return current, errSuperseded
	}
	return to, nil
}

// phase times and traces one step.
func (p *Pipeline) phase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "world_generate."+name)
	start := time.Now()
	err := fn(ctx)
	outcome := aigateway.Outcome(err)
	if code := domainagg.CodeOf(err); code != "" {
		outcome = string(code)
	}
	if errors.Is(err, errSuperseded) {
		outcome = "superseded"
	}
	observability.Current().ObservePhase(name, outcome, time.Since(start))
	observability.EndSpan(span, err)
	return err
}

// fail persists the error on a context that survives cancellation of the run.
func (p *Pipeline) fail(ctx context.Context, ref worlds.RunRef, cause error) worlds.Status {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FailTimeout)
	defer cancel()

	detail := ErrorDetail(cause)
	applied, err := p.agg.Fail(fctx, ref, detail)
	if err != nil {
		p.log.Error("world_generate could not persist failure",
			"world_id", ref.WorldID.String(),
			"run_id", ref.RunID.String(),
			"cause", cause,
			"error", err,
		)
		return ""
	}
	if !applied {
		p.log.Info("world_generate failure not recorded; run no longer active",
			"world_id", ref.WorldID.String(),
			"run_id", ref.RunID.String(),
		)
		return ""
	}
	p.log.Warn("world_generate failed",
		"world_id", ref.WorldID.String(),
		"run_id", ref.RunID.String(),
		"outcome", aigateway.Outcome(cause),
		"error", cause,
	)
	return worlds.StatusError
}

// ErrorDetail is the human-readable message stored on a failed world.
func ErrorDetail(err error) string {
	if err == nil {
		return "generation failed"
	}
	msg := strings.TrimSpace(err.Error())
	if !errors.Is(err, aigateway.ErrUpstream) &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		msg = "generation interrupted; please start a new run"
	}
	if utf8.RuneCountInString(msg) > maxErrorDetail {
		msg = string([]rune(msg)[:maxErrorDetail])
	}
	return msg
}

func buildDerived(a steps.AnalyzeOutput, d steps.DesignOutput, componentCode *string) (worlds.Derived, error) {
	keywords, err := json.Marshal(a.Keywords)
	if err != nil {
		return worlds.Derived{}, err
	}
	design, err := json.Marshal(d)
	if err != nil {
		return worlds.Derived{}, err
	}
	return worlds.Derived{
		Theme:         a.Theme,
		Keywords:      datatypes.JSON(keywords),
		Difficulty:    a.Difficulty,
		TargetAge:     a.TargetAge,
		Summary:       a.Summary,
		Design:        datatypes.JSON(design),
		ComponentCode: componentCode,
	}, nil
}
