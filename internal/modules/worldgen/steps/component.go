package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/learnworld-backend/internal/modules/worldgen/prompts"
	"github.com/yungbote/learnworld-backend/internal/platform/aigateway"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

type ComponentDeps struct {
	Log *logger.Logger
	AI  aigateway.Client
}

type ComponentInput struct {
	Design  DesignOutput
	Content ContentOutput
}

// GenerateComponentCode asks the model for presentation code. The result is stored as-is.
func GenerateComponentCode(ctx context.Context, deps ComponentDeps, in ComponentInput) (string, error) {
	if deps.AI == nil {
		return "", fmt.Errorf("generate_component: missing deps")
	}
	designJSON, err := json.Marshal(in.Design)
	if err != nil {
		return "", fmt.Errorf("generate_component: %w", err)
	}
	modulesJSON, err := json.Marshal(in.Content.Modules)
	if err != nil {
		return "", fmt.Errorf("generate_component: %w", err)
	}
	system, user, err := prompts.Render(prompts.PromptComponent, prompts.Input{
		DesignJSON:  string(designJSON),
		ModulesJSON: string(modulesJSON),
	})
	if err != nil {
		return "", fmt.Errorf("generate_component: %w", err)
	}

	text, err := deps.AI.GenerateText(ctx, system, user)
	if err != nil {
		return "", err
	}
	code := aigateway.StripFences(strings.TrimSpace(text))
	if code == "" {
		return "", aigateway.ErrEmptyOutput
	}
	if !strings.Contains(code, "export") {
		return "", aigateway.NewMalformedOutput(text, errors.New("generate_component: no export in component code"))
	}
	if deps.Log != nil {
		deps.Log.Debug("generate_component done", "bytes", len(code))
	}
	return code, nil
}
