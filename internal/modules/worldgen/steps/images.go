package steps

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/modules/worldgen/media"
	"github.com/yungbote/learnworld-backend/internal/modules/worldgen/prompts"
	"github.com/yungbote/learnworld-backend/internal/observability"
	"github.com/yungbote/learnworld-backend/internal/platform/aigateway"
	"github.com/yungbote/learnworld-backend/internal/platform/assets"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

// ImageSink records stored asset URLs on the run's rows.
type ImageSink interface {
	SetModuleImage(ctx context.Context, ref worlds.RunRef, moduleID uuid.UUID, url string) (bool, error)
	SetCover(ctx context.Context, ref worlds.RunRef, url string) (bool, error)
}

type ImagesDeps struct {
	Log    *logger.Logger
	AI     aigateway.Client
	Assets assets.Store
	Sink   ImageSink
	Cover  *media.CoverRenderer
}

type ImagesInput struct {
	Ref     worlds.RunRef
	Title   string
	Subject string
	Design  DesignOutput
	Modules []*worlds.WorldModule

	MaxImages   int
	Concurrency int
	MaxSide     int
	// PerImageTimeout bounds one module's generate+upload. Zero means no extra bound.
	PerImageTimeout time.Duration
}

type ImagesOutput struct {
	Attempted int
	Stored    int
	Failed    int
	Skipped   bool
	CoverURL  string
}

// GenerateImages illustrates up to MaxImages modules and renders the cover.
// Every module is attempted independently; failures are counted, never returned.
func GenerateImages(ctx context.Context, deps ImagesDeps, in ImagesInput) (ImagesOutput, error) {
	var out ImagesOutput
	if deps.Assets == nil || deps.Sink == nil {
		return out, fmt.Errorf("generate_images: missing deps")
	}
	if deps.Assets.Kind() == "none" {
		out.Skipped = true
		return out, nil
	}

	targets := make([]*worlds.WorldModule, 0, len(in.Modules))
	for _, m := range in.Modules {
		if m == nil || m.ID == uuid.Nil || strings.TrimSpace(m.ImagePrompt) == "" {
			continue
		}
		targets = append(targets, m)
	}
	if in.MaxImages >= 0 && len(targets) > in.MaxImages {
		targets = targets[:in.MaxImages]
	}
	out.Attempted = len(targets)

	if deps.AI != nil && len(targets) > 0 {
		limit := in.Concurrency
		if limit <= 0 {
			limit = 2
		}
		var stored, failed atomic.Int32
		var g errgroup.Group
		g.SetLimit(limit)
		for _, m := range targets {
			g.Go(func() error {
				err := recovered(func() error { return illustrateModule(ctx, deps, in, m) })
				if err != nil {
					failed.Add(1)
					observability.Current().IncImageOutcome("failed")
					if deps.Log != nil {
						deps.Log.Warn("generate_images: module image failed", "module_id", m.ID, "error", err)
					}
					return nil
				}
				stored.Add(1)
				observability.Current().IncImageOutcome("stored")
				return nil
			})
		}
		_ = g.Wait()
		out.Stored = int(stored.Load())
		out.Failed = int(failed.Load())
	}

	if deps.Cover != nil {
		var url string
		err := recovered(func() (err error) {
			url, err = renderCover(ctx, deps, in)
			return err
		})
		if err != nil {
			if deps.Log != nil {
				deps.Log.Warn("generate_images: cover failed", "error", err)
			}
		} else {
			out.CoverURL = url
		}
	}
	return out, nil
}

// recovered runs fn and turns a panic into an error so one bad image cannot
// take down the process.
func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func illustrateModule(ctx context.Context, deps ImagesDeps, in ImagesInput, m *worlds.WorldModule) error {
	if in.PerImageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.PerImageTimeout)
		defer cancel()
	}
	_, prompt, err := prompts.Render(prompts.PromptImage, prompts.Input{
		Mood:        fallback(in.Design.Mood, "friendly"),
		Era:         fallback(in.Design.Era, "timeless"),
		ImagePrompt: m.ImagePrompt,
	})
	if err != nil {
		return err
	}
	img, err := deps.AI.GenerateImage(ctx, prompt)
	if err != nil {
		return err
	}
	data, mime, err := media.Downscale(img.Bytes, in.MaxSide)
	if err != nil {
		return err
	}
	key := assets.ModuleImageKey(in.Ref.WorldID, in.Ref.RunID, m.ID, assets.ExtForMime(mime))
	url, err := deps.Assets.Put(ctx, key, data, mime)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	applied, err := deps.Sink.SetModuleImage(ctx, in.Ref, m.ID, url)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("module image not recorded (run superseded)")
	}
	return nil
}

func renderCover(ctx context.Context, deps ImagesDeps, in ImagesInput) (string, error) {
	png, err := deps.Cover.Render(in.Title, in.Subject, in.Design.Palette)
	if err != nil {
		return "", err
	}
	key := assets.CoverKey(in.Ref.WorldID, in.Ref.RunID)
	url, err := deps.Assets.Put(ctx, key, png, "image/png")
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	applied, err := deps.Sink.SetCover(ctx, in.Ref, url)
	if err != nil {
		return "", err
	}
	if !applied {
		return "", fmt.Errorf("cover not recorded (run superseded)")
	}
	return url, nil
}

func fallback(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
