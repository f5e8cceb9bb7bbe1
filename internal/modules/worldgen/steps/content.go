package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/modules/worldgen/prompts"
	"github.com/yungbote/learnworld-backend/internal/platform/aigateway"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

type ContentDeps struct {
	Log *logger.Logger
	AI  aigateway.Client
}

type ContentInput struct {
	SourceContent string
	Design        DesignOutput
}

// ModuleContent is a designed module with its interactive payload.
type ModuleContent struct {
	Title       string                    `json:"title"`
	ModuleType  worlds.ModuleType         `json:"module_type"`
	ImagePrompt string                    `json:"image_prompt,omitempty"`
	Payload     worlds.InteractionPayload `json:"interaction_payload"`
}

type ContentOutput struct {
	Modules []ModuleContent
	// Dropped counts entries whose payload failed validation.
	Dropped int
	// CountMismatch is set when the reply length differs from the design.
	CountMismatch bool
}

type contentReply struct {
	Modules []struct {
		Title   string          `json:"title"`
		Payload json.RawMessage `json:"payload"`
	} `json:"modules"`
}

func GenerateContent(ctx context.Context, deps ContentDeps, in ContentInput) (ContentOutput, error) {
	var out ContentOutput
	if deps.AI == nil {
		return out, fmt.Errorf("generate_content: missing deps")
	}
	if len(in.Design.Modules) == 0 {
		return out, fmt.Errorf("generate_content: design has no modules")
	}

	modulesJSON, err := json.MarshalIndent(in.Design.Modules, "", "  ")
	if err != nil {
		return out, fmt.Errorf("generate_content: %w", err)
	}
	system, user, err := prompts.Render(prompts.PromptContent, prompts.Input{
		SourceContent: in.SourceContent,
		ModulesJSON:   string(modulesJSON),
	})
	if err != nil {
		return out, fmt.Errorf("generate_content: %w", err)
	}

	var reply contentReply
	if err := deps.AI.GenerateJSON(ctx, system, user, &reply); err != nil {
		return out, err
	}

	if len(reply.Modules) != len(in.Design.Modules) {
		out.CountMismatch = true
		if deps.Log != nil {
			deps.Log.Warn("generate_content: module count differs from design",
				"design", len(in.Design.Modules),
				"content", len(reply.Modules),
			)
		}
	}

	for i, m := range reply.Modules {
		payload, err := ParsePayload(m.Payload)
		if err != nil {
			out.Dropped++
			if deps.Log != nil {
				deps.Log.Warn("generate_content: dropping module", "index", i, "error", err)
			}
			continue
		}
		mc := ModuleContent{
			Title:      strings.TrimSpace(m.Title),
			ModuleType: worlds.DefaultModuleType,
			Payload:    payload,
		}
		if i < len(in.Design.Modules) {
			d := in.Design.Modules[i]
			mc.ModuleType = d.ModuleType
			mc.ImagePrompt = d.ImagePrompt
			if mc.Title == "" {
				mc.Title = d.Title
			}
		}
		if mc.Title == "" {
			out.Dropped++
			continue
		}
		out.Modules = append(out.Modules, mc)
	}

	if len(out.Modules) == 0 {
		return ContentOutput{}, aigateway.NewMalformedOutput("", errors.New("generate_content: no valid modules"))
	}
	return out, nil
}

// ParsePayload decodes and validates one interaction payload.
func ParsePayload(raw json.RawMessage) (worlds.InteractionPayload, error) {
	var p worlds.InteractionPayload
	if len(raw) == 0 {
		return p, errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	p.Kind = worlds.PayloadKind(strings.ToLower(strings.TrimSpace(string(p.Kind))))
	if err := Validator().Struct(p); err != nil {
		return p, err
	}
	if p.ItemCount() == 0 {
		return p, fmt.Errorf("payload %s has no items", p.Kind)
	}
	for i, q := range p.Questions {
		if q.AnswerIndex >= len(q.Options) {
			return p, fmt.Errorf("question %d: answer_index %d out of range", i, q.AnswerIndex)
		}
	}
	return p, nil
}

// Rows turns content into persistable module rows in order.
func (o ContentOutput) Rows() ([]*worlds.WorldModule, error) {
	rows := make([]*worlds.WorldModule, 0, len(o.Modules))
	for _, m := range o.Modules {
		b, err := json.Marshal(m.Payload)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &worlds.WorldModule{
			Title:              m.Title,
			ModuleType:         m.ModuleType,
			InteractionPayload: b,
			ImagePrompt:        m.ImagePrompt,
		})
	}
	return rows, nil
}
