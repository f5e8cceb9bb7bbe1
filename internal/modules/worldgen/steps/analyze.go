package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/learnworld-backend/internal/modules/worldgen/prompts"
	"github.com/yungbote/learnworld-backend/internal/platform/aigateway"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

type AnalyzeDeps struct {
	Log *logger.Logger
	AI  aigateway.Client
}

type AnalyzeInput struct {
	Title         string
	Subject       string
	SourceContent string
}

type AnalyzeOutput struct {
	Theme      string   `json:"theme" validate:"required"`
	Keywords   []string `json:"keywords"`
	Difficulty string   `json:"difficulty"`
	TargetAge  string   `json:"target_age"`
	Summary    string   `json:"summary"`
}

var difficulties = map[string]string{
	"easy":    "easy",
	"leicht":  "easy",
	"einfach": "easy",
	"medium":  "medium",
	"mittel":  "medium",
	"hard":    "hard",
	"schwer":  "hard",
}

func Analyze(ctx context.Context, deps AnalyzeDeps, in AnalyzeInput) (AnalyzeOutput, error) {
	var out AnalyzeOutput
	if deps.AI == nil {
		return out, fmt.Errorf("analyze: missing deps")
	}
	if strings.TrimSpace(in.SourceContent) == "" {
		return out, fmt.Errorf("analyze: missing source content")
	}

	system, user, err := prompts.Render(prompts.PromptAnalyze, prompts.Input{
		Title:         in.Title,
		Subject:       in.Subject,
		SourceContent: in.SourceContent,
	})
	if err != nil {
		return out, fmt.Errorf("analyze: %w", err)
	}
	if err := deps.AI.GenerateJSON(ctx, system, user, &out); err != nil {
		return AnalyzeOutput{}, err
	}

	out.Theme = strings.TrimSpace(out.Theme)
	if out.Theme == "" {
		out.Theme = strings.TrimSpace(in.Title)
	}
	out.Keywords = capStrings(dedupeStrings(out.Keywords), 8)
	if d, ok := difficulties[strings.ToLower(strings.TrimSpace(out.Difficulty))]; ok {
		out.Difficulty = d
	} else {
		out.Difficulty = "medium"
	}
	out.TargetAge = strings.TrimSpace(out.TargetAge)
	out.Summary = strings.TrimSpace(out.Summary)

	if err := Validator().Struct(out); err != nil {
		return AnalyzeOutput{}, aigateway.NewMalformedOutput("", fmt.Errorf("analyze: %w", err))
	}
	if deps.Log != nil {
		deps.Log.Debug("analyze done", "theme", out.Theme, "keywords", len(out.Keywords), "difficulty", out.Difficulty)
	}
	return out, nil
}
