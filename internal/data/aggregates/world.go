package aggregates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/learnworld-backend/internal/data/repos"
	domainagg "github.com/yungbote/learnworld-backend/internal/domain/aggregates"
	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/platform/dbctx"
)

const worldTable = "world"

type WorldAggregateDeps struct {
	Base BaseDeps

	Worlds  repos.WorldRepo
	Modules repos.WorldModuleRepo
	Events  repos.WorldStatusEventRepo

	// Notifier receives committed changes. Nil disables publishing.
	Notifier worlds.ChangeNotifier
	Now      func() time.Time
}

type worldAggregate struct {
	deps WorldAggregateDeps
}

func NewWorldAggregate(deps WorldAggregateDeps) domainagg.WorldAggregate {
	deps.Base = deps.Base.withDefaults()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &worldAggregate{deps: deps}
}

func (a *worldAggregate) now() time.Time {
	return a.deps.Now().UTC()
}

func (a *worldAggregate) publish(ctx context.Context, ch worlds.Change) {
	if a.deps.Notifier == nil || ch.OwnerID == uuid.Nil {
		return
	}
	a.deps.Notifier.WorldChanged(ctx, ch)
}

func (a *worldAggregate) ledger(dbc dbctx.Context, ref worlds.RunRef, status worlds.Status, message string, at time.Time) error {
	return a.deps.Events.Append(dbc, &worlds.WorldStatusEvent{
		WorldID:   ref.WorldID,
		OwnerID:   ref.OwnerID,
		RunID:     ref.RunID,
		Status:    status,
		Message:   message,
		CreatedAt: at,
	})
}

func (a *worldAggregate) Create(ctx context.Context, in domainagg.CreateWorldInput) (*worlds.World, error) {
	const op = "Worlds.World.Create"
	title := strings.TrimSpace(in.Title)
	if in.OwnerID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing owner_id", nil)
	}
	if title == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "title is required", nil)
	}
	if strings.TrimSpace(in.SourceContent) == "" {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "source_content is required", nil)
	}

	now := a.now()
	w := &worlds.World{
		ID:            uuid.New(),
		OwnerID:       in.OwnerID,
		RunID:         uuid.New(),
		Title:         title,
		Subject:       strings.TrimSpace(in.Subject),
		SourceContent: in.SourceContent,
		Status:        worlds.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	ref := worlds.RunRef{WorldID: w.ID, OwnerID: w.OwnerID, RunID: w.RunID}

	err := a.deps.Base.write(ctx, op, func(dbc dbctx.Context) error {
		if err := a.deps.Worlds.Create(dbc, w); err != nil {
			return err
		}
		return a.ledger(dbc, ref, worlds.StatusPending, "created", now)
	})
	if err != nil {
		return nil, err
	}
	a.publish(ctx, worlds.Change{Type: worlds.ChangeInsert, OwnerID: w.OwnerID, Row: w.Row()})
	return w, nil
}

func (a *worldAggregate) StartRun(ctx context.Context, ownerID, worldID uuid.UUID) (*worlds.World, error) {
	const op = "Worlds.World.StartRun"
	if ownerID == uuid.Nil || worldID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "owner_id and world_id are required", nil)
	}

	now := a.now()
	var out *worlds.World
	err := a.deps.Base.write(ctx, op, func(dbc dbctx.Context) error {
		w, err := a.deps.Worlds.GetByOwnerAndID(dbc, ownerID, worldID)
		if err != nil {
			return err
		}
		if w == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "world not found", nil)
		}
		if !w.Status.IsTerminal() {
			return domainagg.NewError(domainagg.CodeConflict, op, fmt.Sprintf("run in progress (status %s)", w.Status), nil)
		}

		newRun := uuid.New()
		current := worlds.RunRef{WorldID: w.ID, OwnerID: w.OwnerID, RunID: w.RunID}
		ok, err := updateRun(dbc, current, []worlds.Status{worlds.StatusComplete, worlds.StatusError},
			map[string]any{
				"run_id":          newRun,
				"status":          string(worlds.StatusPending),
				"error_detail":    nil,
				"theme":           "",
				"keywords":        nil,
				"difficulty":      "",
				"target_age":      "",
				"summary":         "",
				"design":          nil,
				"component_code":  nil,
				"cover_image_url": nil,
				"module_count":    0,
				"updated_at":      now,
			})
		if err != nil {
			return err
		}
		if !ok {
			return ConflictError("world changed while starting a run")
		}
		if err := a.deps.Modules.DeleteByWorld(dbc, w.ID); err != nil {
			return err
		}
		ref := worlds.RunRef{WorldID: w.ID, OwnerID: w.OwnerID, RunID: newRun}
		if err := a.ledger(dbc, ref, worlds.StatusPending, "run started", now); err != nil {
			return err
		}
		out, err = a.deps.Worlds.GetByID(dbc, w.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, "world not found", nil)
	}
	a.publish(ctx, worlds.Change{Type: worlds.ChangeUpdate, OwnerID: out.OwnerID, Row: out.Row()})
	return out, nil
}

func (a *worldAggregate) Transition(ctx context.Context, ref worlds.RunRef, to worlds.Status) (bool, error) {
	const op = "Worlds.World.Transition"
	if to == worlds.StatusError {
		return a.Fail(ctx, ref, "")
	}
	preds := worlds.Predecessors(to)
	if len(preds) == 0 {
		return false, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("status %q cannot be reached by a transition", to), nil)
	}
	return a.guardedStatusWrite(ctx, op, ref, preds, to, nil)
}

func (a *worldAggregate) Fail(ctx context.Context, ref worlds.RunRef, detail string) (bool, error) {
	const op = "Worlds.World.Fail"
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = "generation failed"
	}
	return a.guardedStatusWrite(ctx, op, ref, worlds.NonTerminal(), worlds.StatusError, &detail)
}

func (a *worldAggregate) guardedStatusWrite(ctx context.Context, op string, ref worlds.RunRef, from []worlds.Status, to worlds.Status, errorDetail *string) (bool, error) {
	if ref.WorldID == uuid.Nil || ref.RunID == uuid.Nil {
		return false, domainagg.NewError(domainagg.CodeValidation, op, "world_id and run_id are required", nil)
	}
	now := a.now()
	applied := false
	err := a.deps.Base.write(ctx, op, func(dbc dbctx.Context) error {
		updates := map[string]any{
			"status":       string(to),
			"error_detail": nil,
			"updated_at":   now,
		}
		if errorDetail != nil {
			updates["error_detail"] = *errorDetail
		}
		ok, err := updateRun(dbc, ref, from, updates)
		if err != nil || !ok {
			return err
		}
		applied = true
		msg := ""
		if errorDetail != nil {
			msg = *errorDetail
		}
		return a.ledger(dbc, ref, to, msg, now)
	})
	if err != nil {
		return false, err
	}
	if !applied {
		a.deps.Base.Log.Debug("guarded status write skipped", "op", op, "world_id", ref.WorldID, "run_id", ref.RunID, "to", to)
		return false, nil
	}
	a.publish(ctx, worlds.Change{
		Type:    worlds.ChangeUpdate,
		OwnerID: ref.OwnerID,
		Row:     worlds.StatusRow(ref.WorldID, ref.RunID, to, errorDetail, now),
	})
	return true, nil
}

func (a *worldAggregate) Finalize(ctx context.Context, in domainagg.FinalizeWorldInput) (bool, error) {
	const op = "Worlds.World.Finalize"
	ref := in.Ref
	if ref.WorldID == uuid.Nil || ref.RunID == uuid.Nil {
		return false, domainagg.NewError(domainagg.CodeValidation, op, "world_id and run_id are required", nil)
	}
	if len(in.Modules) == 0 {
		return false, domainagg.NewError(domainagg.CodeValidation, op, "module batch is empty", nil)
	}

	now := a.now()
	d := in.Derived
	applied := false
	err := a.deps.Base.write(ctx, op, func(dbc dbctx.Context) error {
		ok, err := updateRun(dbc, ref, []worlds.Status{worlds.StatusFinalizing},
			map[string]any{
				"theme":          d.Theme,
				"keywords":       jsonOrNil(d.Keywords),
				"difficulty":     d.Difficulty,
				"target_age":     d.TargetAge,
				"summary":        d.Summary,
				"design":         jsonOrNil(d.Design),
				"component_code": d.ComponentCode,
				"module_count":   len(in.Modules),
				"updated_at":     now,
			})
		if err != nil || !ok {
			return err
		}
		if err := a.deps.Modules.DeleteByWorld(dbc, ref.WorldID); err != nil {
			return err
		}
		for i, m := range in.Modules {
			if m.ID == uuid.Nil {
				m.ID = uuid.New()
			}
			m.WorldID = ref.WorldID
			m.OrderIndex = i
			m.ModuleType = worlds.CoerceModuleType(string(m.ModuleType))
			m.CreatedAt = now
			m.UpdatedAt = now
		}
		if err := a.deps.Modules.CreateBatch(dbc, in.Modules); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}
	if w, rerr := a.deps.Worlds.GetByID(dbctx.Context{Ctx: ctx}, ref.WorldID); rerr == nil && w != nil {
		a.publish(ctx, worlds.Change{Type: worlds.ChangeUpdate, OwnerID: w.OwnerID, Row: w.Row()})
	}
	return true, nil
}

func (a *worldAggregate) SetModuleImage(ctx context.Context, ref worlds.RunRef, moduleID uuid.UUID, url string) (bool, error) {
	const op = "Worlds.World.SetModuleImage"
	if moduleID == uuid.Nil || strings.TrimSpace(url) == "" {
		return false, domainagg.NewError(domainagg.CodeValidation, op, "module_id and url are required", nil)
	}
	applied := false
	err := a.deps.Base.write(ctx, op, func(dbc dbctx.Context) error {
		w, err := a.deps.Worlds.GetByID(dbc, ref.WorldID)
		if err != nil || w == nil || w.RunID != ref.RunID {
			return err
		}
		applied, err = a.deps.Modules.SetImageURL(dbc, ref.WorldID, moduleID, url)
		return err
	})
	return applied, err
}

func (a *worldAggregate) SetCover(ctx context.Context, ref worlds.RunRef, url string) (bool, error) {
	const op = "Worlds.World.SetCover"
	if strings.TrimSpace(url) == "" {
		return false, domainagg.NewError(domainagg.CodeValidation, op, "url is required", nil)
	}
	now := a.now()
	applied := false
	err := a.deps.Base.write(ctx, op, func(dbc dbctx.Context) error {
		ok, err := updateRun(dbc, ref, []worlds.Status{worlds.StatusImages},
			map[string]any{"cover_image_url": url, "updated_at": now})
		applied = ok
		return err
	})
	if err != nil || !applied {
		return false, err
	}
	a.publish(ctx, worlds.Change{
		Type:    worlds.ChangeUpdate,
		OwnerID: ref.OwnerID,
		Row: map[string]any{
			"id":              ref.WorldID.String(),
			"run_id":          ref.RunID.String(),
			"cover_image_url": url,
			"updated_at":      now.Format(time.RFC3339Nano),
		},
	})
	return true, nil
}

func (a *worldAggregate) Delete(ctx context.Context, ownerID, worldID uuid.UUID) (bool, error) {
	const op = "Worlds.World.Delete"
	deleted := false
	err := a.deps.Base.write(ctx, op, func(dbc dbctx.Context) error {
		w, err := a.deps.Worlds.GetByOwnerAndID(dbc, ownerID, worldID)
		if err != nil || w == nil {
			return err
		}
		if err := a.deps.Modules.DeleteByWorld(dbc, w.ID); err != nil {
			return err
		}
		if err := a.deps.Events.DeleteByWorld(dbc, w.ID); err != nil {
			return err
		}
		deleted, err = a.deps.Worlds.Delete(dbc, ownerID, w.ID)
		return err
	})
	if err != nil || !deleted {
		return false, err
	}
	a.publish(ctx, worlds.Change{
		Type:    worlds.ChangeDelete,
		OwnerID: ownerID,
		Row:     map[string]any{"id": worldID.String()},
	})
	return true, nil
}

func (a *worldAggregate) FailStale(ctx context.Context, olderThan time.Time, detail string) (int, error) {
	stale, err := a.deps.Worlds.ListStale(dbctx.Context{Ctx: ctx}, olderThan, 100)
	if err != nil {
		return 0, MapError("Worlds.World.FailStale", err)
	}
	moved := 0
	for _, w := range stale {
		ok, err := a.Fail(ctx, worlds.RunRef{WorldID: w.ID, OwnerID: w.OwnerID, RunID: w.RunID}, detail)
		if err != nil {
			return moved, err
		}
		if ok {
			moved++
		}
	}
	return moved, nil
}

func jsonOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
