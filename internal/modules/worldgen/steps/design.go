package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/modules/worldgen/media"
	"github.com/yungbote/learnworld-backend/internal/modules/worldgen/prompts"
	"github.com/yungbote/learnworld-backend/internal/platform/aigateway"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

const maxDesignModules = 12

type DesignDeps struct {
	Log *logger.Logger
	AI  aigateway.Client
}

type DesignInput struct {
	Title    string
	Analysis AnalyzeOutput
}

// ModuleDesign is a module without its interactive payload.
type ModuleDesign struct {
	Title       string            `json:"title"`
	ModuleType  worlds.ModuleType `json:"module_type"`
	ImagePrompt string            `json:"image_prompt"`
}

type DesignOutput struct {
	Palette media.Palette  `json:"palette"`
	Mood    string         `json:"mood"`
	Era     string         `json:"era"`
	Tags    []string       `json:"tags"`
	Modules []ModuleDesign `json:"modules"`
}

type designReply struct {
	Palette media.Palette `json:"palette"`
	Mood    string        `json:"mood"`
	Era     string        `json:"era"`
	Tags    []string      `json:"tags"`
	Modules []struct {
		Title       string `json:"title"`
		ModuleType  string `json:"module_type"`
		Type        string `json:"type"`
		ImagePrompt string `json:"image_prompt"`
	} `json:"modules"`
}

func Design(ctx context.Context, deps DesignDeps, in DesignInput) (DesignOutput, error) {
	var out DesignOutput
	if deps.AI == nil {
		return out, fmt.Errorf("design: missing deps")
	}

	system, user, err := prompts.Render(prompts.PromptDesign, prompts.Input{
		Title:      in.Title,
		Theme:      in.Analysis.Theme,
		Keywords:   strings.Join(in.Analysis.Keywords, ", "),
		Difficulty: in.Analysis.Difficulty,
		TargetAge:  in.Analysis.TargetAge,
		Summary:    in.Analysis.Summary,
	})
	if err != nil {
		return out, fmt.Errorf("design: %w", err)
	}

	var reply designReply
	if err := deps.AI.GenerateJSON(ctx, system, user, &reply); err != nil {
		return out, err
	}

	out.Palette = media.Palette{
		Primary:    media.NormalizeHex(reply.Palette.Primary),
		Secondary:  media.NormalizeHex(reply.Palette.Secondary),
		Accent:     media.NormalizeHex(reply.Palette.Accent),
		Background: media.NormalizeHex(reply.Palette.Background),
	}
	out.Mood = strings.TrimSpace(reply.Mood)
	out.Era = strings.TrimSpace(reply.Era)
	out.Tags = capStrings(dedupeStrings(reply.Tags), 6)

	for _, m := range reply.Modules {
		title := strings.TrimSpace(m.Title)
		if title == "" {
			continue
		}
		raw := m.ModuleType
		if strings.TrimSpace(raw) == "" {
			raw = m.Type
		}
		mt := worlds.CoerceModuleType(raw)
		if deps.Log != nil && !worlds.ModuleType(strings.ToLower(strings.TrimSpace(raw))).Valid() {
			deps.Log.Debug("design: coerced module type", "raw", raw, "module_type", mt)
		}
		out.Modules = append(out.Modules, ModuleDesign{
			Title:       title,
			ModuleType:  mt,
			ImagePrompt: strings.TrimSpace(m.ImagePrompt),
		})
		if len(out.Modules) == maxDesignModules {
			break
		}
	}
	if len(out.Modules) == 0 {
		return DesignOutput{}, aigateway.NewMalformedOutput("", errors.New("design: no modules"))
	}
	return out, nil
}
