package steps

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/modules/worldgen/media"
	"github.com/yungbote/learnworld-backend/internal/platform/aigateway"
	"github.com/yungbote/learnworld-backend/internal/platform/assets"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

const sampleDesign = "```json\n" + `{
  "palette": {"primary": "#112233", "secondary": "zzz", "accent": "abcdef", "background": "#000000"},
  "mood": "neugierig",
  "era": "Weltraum",
  "tags": ["sterne", "Sterne", "licht"],
  "modules": [
    {"title": "Was ist ein Stern?", "module_type": "Wissen", "image_prompt": "a glowing sun"},
    {"title": "Quiz", "module_type": "quiz", "image_prompt": "stars"},
    {"title": "  ", "module_type": "challenge"},
    {"title": "Rückblick", "type": "something-else", "image_prompt": ""}
  ]
}` + "\n```"

const sampleContent = `{"modules": [
  {"title": "Was ist ein Stern?", "payload": {"kind": "text", "text": "Die Sonne ist ein Stern."}},
  {"title": "Quiz", "payload": {"kind": "quiz", "questions": [{"question": "Ist die Sonne ein Stern?", "options": ["Ja", "Nein"], "answer_index": 0}]}},
  {"title": "Paare", "payload": {"kind": "matching", "pairs": [{"left": "Sonne", "right": "Stern"}]}}
]}`

func TestAnalyzeNormalizes(t *testing.T) {
	ai := &fakeAI{replies: map[string]string{
		"analyze": `{"theme": " Sterne ", "keywords": ["Sonne", "sonne", "Stern", ""], "difficulty": "Leicht", "target_age": "8-10", "summary": "Die Sonne ist ein Stern."}`,
	}}
	out, err := Analyze(context.Background(), AnalyzeDeps{Log: logger.NewNop(), AI: ai}, AnalyzeInput{Title: "Sterne", SourceContent: "Die Sonne ist ein Stern."})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Theme != "Sterne" {
		t.Fatalf("theme: want=Sterne got=%q", out.Theme)
	}
	if len(out.Keywords) != 2 {
		t.Fatalf("keywords: want=2 got=%v", out.Keywords)
	}
	if out.Difficulty != "easy" {
		t.Fatalf("difficulty: want=easy got=%q", out.Difficulty)
	}
}

func TestAnalyzeRequiresSource(t *testing.T) {
	_, err := Analyze(context.Background(), AnalyzeDeps{AI: &fakeAI{}}, AnalyzeInput{Title: "x", SourceContent: " "})
	if err == nil {
		t.Fatalf("expected error for blank source")
	}
}

func TestAnalyzePropagatesRateLimit(t *testing.T) {
	ai := &fakeAI{errs: map[string]error{"analyze": aigateway.ErrRateLimited}}
	_, err := Analyze(context.Background(), AnalyzeDeps{AI: ai}, AnalyzeInput{Title: "x", SourceContent: "y"})
	if !errors.Is(err, aigateway.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited got=%v", err)
	}
}

func TestDesignCoercesAndFilters(t *testing.T) {
	ai := &fakeAI{replies: map[string]string{"design": sampleDesign}}
	out, err := Design(context.Background(), DesignDeps{Log: logger.NewNop(), AI: ai}, DesignInput{
		Title:    "Sterne",
		Analysis: AnalyzeOutput{Theme: "Sterne"},
	})
	if err != nil {
		t.Fatalf("Design: %v", err)
	}
	if len(out.Modules) != 3 {
		t.Fatalf("modules: want=3 got=%d", len(out.Modules))
	}
	wantTypes := []worlds.ModuleType{worlds.ModuleKnowledge, worlds.ModulePractice, worlds.ModuleKnowledge}
	for i, want := range wantTypes {
		if out.Modules[i].ModuleType != want {
			t.Fatalf("module %d type: want=%s got=%s", i, want, out.Modules[i].ModuleType)
		}
	}
	if out.Palette.Primary != "#112233" || out.Palette.Secondary != "" || out.Palette.Accent != "#ABCDEF" {
		t.Fatalf("palette not normalized: %+v", out.Palette)
	}
	if len(out.Tags) != 2 {
		t.Fatalf("tags: want=2 got=%v", out.Tags)
	}
}

func TestDesignWithoutModulesIsMalformed(t *testing.T) {
	ai := &fakeAI{replies: map[string]string{"design": `{"mood": "x", "modules": []}`}}
	_, err := Design(context.Background(), DesignDeps{AI: ai}, DesignInput{Analysis: AnalyzeOutput{Theme: "t"}})
	if !errors.Is(err, aigateway.ErrMalformedOutput) {
		t.Fatalf("want ErrMalformedOutput got=%v", err)
	}
}

func TestGenerateContentMergesDesign(t *testing.T) {
	design := DesignOutput{Modules: []ModuleDesign{
		{Title: "Was ist ein Stern?", ModuleType: worlds.ModuleKnowledge, ImagePrompt: "sun"},
		{Title: "Quiz", ModuleType: worlds.ModulePractice, ImagePrompt: "stars"},
	}}
	ai := &fakeAI{replies: map[string]string{"content": sampleContent}}
	out, err := GenerateContent(context.Background(), ContentDeps{Log: logger.NewNop(), AI: ai}, ContentInput{
		SourceContent: "Die Sonne ist ein Stern.",
		Design:        design,
	})
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	if !out.CountMismatch {
		t.Fatalf("expected count mismatch warning")
	}
	if len(out.Modules) != 3 {
		t.Fatalf("modules: want=3 got=%d", len(out.Modules))
	}
	if out.Modules[1].ModuleType != worlds.ModulePractice || out.Modules[1].ImagePrompt != "stars" {
		t.Fatalf("design not merged: %+v", out.Modules[1])
	}
	if out.Modules[2].ModuleType != worlds.DefaultModuleType {
		t.Fatalf("extra module type: want=%s got=%s", worlds.DefaultModuleType, out.Modules[2].ModuleType)
	}
	rows, err := out.Rows()
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 3 || len(rows[0].InteractionPayload) == 0 || rows[0].Title == "" {
		t.Fatalf("rows incomplete: %+v", rows)
	}
}

func TestGenerateContentDropsInvalidPayloads(t *testing.T) {
	design := DesignOutput{Modules: []ModuleDesign{{Title: "A"}, {Title: "B"}}}
	ai := &fakeAI{replies: map[string]string{"content": `{"modules": [
		{"title": "A", "payload": {"kind": "quiz", "questions": [{"question": "q", "options": ["a", "b"], "answer_index": 5}]}},
		{"title": "B", "payload": {"kind": "poem", "text": "x"}}
	]}`}}
	_, err := GenerateContent(context.Background(), ContentDeps{AI: ai}, ContentInput{SourceContent: "s", Design: design})
	if !errors.Is(err, aigateway.ErrMalformedOutput) {
		t.Fatalf("want ErrMalformedOutput got=%v", err)
	}
}

func TestParsePayload(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"text", `{"kind":"text","text":"hi"}`, true},
		{"empty text", `{"kind":"text","text":""}`, false},
		{"fill blank", `{"kind":"fill_blank","blanks":[{"sentence":"Die ___ ist ein Stern.","answer":"Sonne"}]}`, true},
		{"blank missing answer", `{"kind":"fill_blank","blanks":[{"sentence":"x"}]}`, false},
		{"matching", `{"kind":"Matching","pairs":[{"left":"a","right":"b"}]}`, true},
		{"quiz one option", `{"kind":"quiz","questions":[{"question":"q","options":["a"],"answer_index":0}]}`, false},
		{"unknown kind", `{"kind":"essay","text":"x"}`, false},
		{"not json", `nope`, false},
	}
	for _, tc := range cases {
		_, err := ParsePayload([]byte(tc.raw))
		if (err == nil) != tc.ok {
			t.Fatalf("%s: want ok=%v got err=%v", tc.name, tc.ok, err)
		}
	}
}

func TestGenerateComponentCode(t *testing.T) {
	ai := &fakeAI{text: "```tsx\nexport default function World() { return null }\n```"}
	code, err := GenerateComponentCode(context.Background(), ComponentDeps{AI: ai}, ComponentInput{})
	if err != nil {
		t.Fatalf("GenerateComponentCode: %v", err)
	}
	if strings.Contains(code, "```") || !strings.HasPrefix(code, "export default") {
		t.Fatalf("fences not stripped: %q", code)
	}

	ai = &fakeAI{text: "   "}
	if _, err := GenerateComponentCode(context.Background(), ComponentDeps{AI: ai}, ComponentInput{}); !errors.Is(err, aigateway.ErrEmptyOutput) {
		t.Fatalf("want ErrEmptyOutput got=%v", err)
	}
}

func TestTruncateSource(t *testing.T) {
	if got := TruncateSource("  Größe  ", 3); got != "Grö" {
		t.Fatalf("TruncateSource: want=Grö got=%q", got)
	}
	if got := TruncateSource("abc", 0); got != "abc" {
		t.Fatalf("TruncateSource unlimited: want=abc got=%q", got)
	}
}

type memStore struct {
	mu   sync.Mutex
	puts map[string]int
	fail string
}

func (s *memStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	if s.fail != "" && strings.Contains(key, s.fail) {
		return "", errors.New("upload refused")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.puts == nil {
		s.puts = map[string]int{}
	}
	s.puts[key] = len(data)
	return "https://assets.test/" + key, nil
}

func (s *memStore) Delete(context.Context, string) error { return nil }
func (s *memStore) Kind() string                         { return "mem" }

type recordingSink struct {
	mu      sync.Mutex
	modules map[uuid.UUID]string
	cover   string
}

func (s *recordingSink) SetModuleImage(_ context.Context, _ worlds.RunRef, moduleID uuid.UUID, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.modules == nil {
		s.modules = map[uuid.UUID]string{}
	}
	s.modules[moduleID] = url
	return true, nil
}

func (s *recordingSink) SetCover(_ context.Context, _ worlds.RunRef, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cover = url
	return true, nil
}

func tinyPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func TestGenerateImagesIsolatesFailures(t *testing.T) {
	mods := []*worlds.WorldModule{
		{ID: uuid.New(), ImagePrompt: "ok"},
		{ID: uuid.New(), ImagePrompt: "boom"},
		{ID: uuid.New(), ImagePrompt: ""},
		{ID: uuid.New(), ImagePrompt: "ok"},
		{ID: uuid.New(), ImagePrompt: "over cap"},
	}
	ai := &fakeAI{image: func(prompt string) (aigateway.Image, error) {
		if strings.Contains(prompt, "boom") {
			return aigateway.Image{}, aigateway.ErrUpstream
		}
		return aigateway.Image{Bytes: tinyPNG(), MimeType: "image/png"}, nil
	}}
	cover, err := media.NewCoverRenderer("")
	if err != nil {
		t.Fatalf("NewCoverRenderer: %v", err)
	}
	store := &memStore{}
	sink := &recordingSink{}
	ref := worlds.RunRef{WorldID: uuid.New(), OwnerID: uuid.New(), RunID: uuid.New()}

	out, err := GenerateImages(context.Background(), ImagesDeps{
		Log:    logger.NewNop(),
		AI:     ai,
		Assets: store,
		Sink:   sink,
		Cover:  cover,
	}, ImagesInput{
		Ref:         ref,
		Title:       "Sterne",
		Modules:     mods,
		MaxImages:   3,
		Concurrency: 2,
		MaxSide:     4,
	})
	if err != nil {
		t.Fatalf("GenerateImages: %v", err)
	}
	if out.Attempted != 3 || out.Stored != 2 || out.Failed != 1 {
		t.Fatalf("counts: want=3/2/1 got=%d/%d/%d", out.Attempted, out.Stored, out.Failed)
	}
	if _, ok := sink.modules[mods[4].ID]; ok {
		t.Fatalf("module past the cap must not be illustrated")
	}
	if _, ok := sink.modules[mods[1].ID]; ok {
		t.Fatalf("failed module must not be recorded")
	}
	if out.CoverURL == "" || sink.cover != out.CoverURL {
		t.Fatalf("cover: want recorded url got=%q sink=%q", out.CoverURL, sink.cover)
	}
	if !strings.HasSuffix(out.CoverURL, assets.CoverKey(ref.WorldID, ref.RunID)) {
		t.Fatalf("cover key mismatch: %s", out.CoverURL)
	}
}

func TestGenerateImagesSkipsWithoutStorage(t *testing.T) {
	out, err := GenerateImages(context.Background(), ImagesDeps{
		AI:     &fakeAI{},
		Assets: assets.NewNoneStore(),
		Sink:   &recordingSink{},
	}, ImagesInput{Modules: []*worlds.WorldModule{{ID: uuid.New(), ImagePrompt: "x"}}, MaxImages: 3})
	if err != nil {
		t.Fatalf("GenerateImages: %v", err)
	}
	if !out.Skipped || out.Attempted != 0 {
		t.Fatalf("want skipped got=%+v", out)
	}
}

func TestGenerateImagesAbsorbsPanics(t *testing.T) {
	mods := []*worlds.WorldModule{
		{ID: uuid.New(), ImagePrompt: "ok"},
		{ID: uuid.New(), ImagePrompt: "panic"},
	}
	ai := &fakeAI{image: func(prompt string) (aigateway.Image, error) {
		if strings.Contains(prompt, "panic") {
			panic("decoder blew up")
		}
		return aigateway.Image{Bytes: tinyPNG(), MimeType: "image/png"}, nil
	}}
	sink := &recordingSink{}

	out, err := GenerateImages(context.Background(), ImagesDeps{
		Log:    logger.NewNop(),
		AI:     ai,
		Assets: &memStore{},
		Sink:   sink,
	}, ImagesInput{
		Ref:         worlds.RunRef{WorldID: uuid.New(), OwnerID: uuid.New(), RunID: uuid.New()},
		Modules:     mods,
		MaxImages:   2,
		Concurrency: 2,
		MaxSide:     4,
	})
	if err != nil {
		t.Fatalf("GenerateImages: %v", err)
	}
	if out.Stored != 1 || out.Failed != 1 {
		t.Fatalf("counts: want stored=1 failed=1 got=%d/%d", out.Stored, out.Failed)
	}
	if _, ok := sink.modules[mods[0].ID]; !ok {
		t.Fatalf("healthy module should still be illustrated")
	}
}

func TestRecoveredTurnsPanicIntoError(t *testing.T) {
	err := recovered(func() error { panic("boom") })
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("recovered: want panic error got=%v", err)
	}
	if err := recovered(func() error { return nil }); err != nil {
		t.Fatalf("recovered: want=nil got=%v", err)
	}
}
