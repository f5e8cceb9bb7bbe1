package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

const (
	PromptAnalyze   = "analyze"
	PromptDesign    = "design"
	PromptContent   = "content"
	PromptComponent = "component"
	PromptImage     = "image"
)

//go:embed prompts.yaml
var catalogYAML []byte

// Input carries every template field; each prompt uses a subset.
type Input struct {
	Title         string
	Subject       string
	SourceContent string

	Theme      string
	Keywords   string
	Difficulty string
	TargetAge  string
	Summary    string

	DesignJSON  string
	ModulesJSON string

	Mood        string
	Era         string
	ImagePrompt string
}

type yamlCatalog struct {
	Version int        `yaml:"version"`
	Prompts []yamlSpec `yaml:"prompts"`
}

type yamlSpec struct {
	Name     string   `yaml:"name"`
	System   string   `yaml:"system"`
	User     string   `yaml:"user"`
	Required []string `yaml:"required"`
}

type spec struct {
	name     string
	system   *template.Template
	user     *template.Template
	required []string
}

var (
	loadOnce sync.Once
	registry map[string]*spec
	loadErr  error
)

func load() (map[string]*spec, error) {
	loadOnce.Do(func() {
		registry, loadErr = parseCatalog(catalogYAML)
	})
	return registry, loadErr
}

func parseCatalog(data []byte) (map[string]*spec, error) {
	var cat yamlCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}
	out := make(map[string]*spec, len(cat.Prompts))
	for _, p := range cat.Prompts {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("prompt without name")
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("duplicate prompt %q", name)
		}
		sys, err := template.New(name + ".system").Option("missingkey=error").Parse(p.System)
		if err != nil {
			return nil, fmt.Errorf("prompt %s system: %w", name, err)
		}
		usr, err := template.New(name + ".user").Option("missingkey=error").Parse(p.User)
		if err != nil {
			return nil, fmt.Errorf("prompt %s user: %w", name, err)
		}
		for _, field := range p.Required {
			if _, ok := reflect.TypeOf(Input{}).FieldByName(field); !ok {
				return nil, fmt.Errorf("prompt %s requires unknown field %q", name, field)
			}
		}
		out[name] = &spec{name: name, system: sys, user: usr, required: p.Required}
	}
	return out, nil
}

// Render executes the named prompt. Required fields must be non-blank.
func Render(name string, in Input) (system string, user string, err error) {
	reg, err := load()
	if err != nil {
		return "", "", err
	}
	s, ok := reg[name]
	if !ok {
		return "", "", fmt.Errorf("unknown prompt %q", name)
	}
	v := reflect.ValueOf(in)
	for _, field := range s.required {
		if strings.TrimSpace(v.FieldByName(field).String()) == "" {
			return "", "", fmt.Errorf("prompt %s: %s is required", name, field)
		}
	}
	var sb, ub bytes.Buffer
	if err := s.system.Execute(&sb, in); err != nil {
		return "", "", fmt.Errorf("prompt %s system: %w", name, err)
	}
	if err := s.user.Execute(&ub, in); err != nil {
		return "", "", fmt.Errorf("prompt %s user: %w", name, err)
	}
	return strings.TrimSpace(sb.String()), strings.TrimSpace(ub.String()), nil
}

// Names lists the registered prompts.
func Names() []string {
	reg, err := load()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(reg))
	for name := range reg {
		out = append(out, name)
	}
	return out
}
