package world_generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	dataagg "github.com/yungbote/learnworld-backend/internal/data/aggregates"
	"github.com/yungbote/learnworld-backend/internal/data/repos"
	"github.com/yungbote/learnworld-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/learnworld-backend/internal/domain/aggregates"
	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
	"github.com/yungbote/learnworld-backend/internal/jobs/runtime"
	"github.com/yungbote/learnworld-backend/internal/modules/worldgen/media"
	"github.com/yungbote/learnworld-backend/internal/platform/aigateway"
	"github.com/yungbote/learnworld-backend/internal/platform/assets"
	"github.com/yungbote/learnworld-backend/internal/platform/dbctx"
)

const (
	analyzeReply = `{"theme": "Sterne", "keywords": ["Sonne", "Stern"], "difficulty": "easy", "target_age": "8-10", "summary": "Die Sonne ist ein Stern."}`
	designReply  = "```json\n" + `{"palette": {"primary": "#224466"}, "mood": "ruhig", "era": "heute", "modules": [
		{"title": "Die Sonne", "module_type": "wissen", "image_prompt": "a friendly sun"},
		{"title": "Quiz", "module_type": "quiz", "image_prompt": "boom"}
	]}` + "\n```"
	contentReply = `{"modules": [
		{"title": "Die Sonne", "payload": {"kind": "text", "text": "Die Sonne ist ein Stern."}},
		{"title": "Quiz", "payload": {"kind": "quiz", "questions": [{"question": "Ist die Sonne ein Stern?", "options": ["Ja", "Nein"], "answer_index": 0}]}}
	]}`
)

type fakeAI struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	text    string
	textErr error
	calls   []string
}

func newFakeAI() *fakeAI {
	return &fakeAI{
		replies: map[string]string{
			"analyze": analyzeReply,
			"design":  designReply,
			"content": contentReply,
		},
		errs: map[string]error{},
		text: "export default function World() { return null }",
	}
}

func phaseOf(system string) string {
	switch {
	case strings.Contains(system, "You analyze"):
		return "analyze"
	case strings.Contains(system, "You design"):
		return "design"
	case strings.Contains(system, "interactive content"):
		return "content"
	default:
		return "other"
	}
}

func (f *fakeAI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAI) Invoke(ctx context.Context, system, user string, structured bool) (aigateway.Result, error) {
	phase := phaseOf(system)
	f.record(phase)
	if err := f.errs[phase]; err != nil {
		return aigateway.Result{}, err
	}
	raw, err := aigateway.ExtractJSON(f.replies[phase])
	if err != nil {
		return aigateway.Result{}, err
	}
	return aigateway.Result{Text: f.replies[phase], JSON: json.RawMessage(raw)}, nil
}

func (f *fakeAI) GenerateJSON(ctx context.Context, system, user string, out any) error {
	res, err := f.Invoke(ctx, system, user, true)
	if err != nil {
		return err
	}
	return json.Unmarshal(res.JSON, out)
}

func (f *fakeAI) GenerateText(ctx context.Context, system, user string) (string, error) {
	f.record("component")
	return f.text, f.textErr
}

func (f *fakeAI) GenerateImage(ctx context.Context, prompt string) (aigateway.Image, error) {
	f.record("image")
	if strings.Contains(prompt, "boom") {
		return aigateway.Image{}, &aigateway.UpstreamError{Status: 500, Body: "image backend down"}
	}
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return aigateway.Image{Bytes: buf.Bytes(), MimeType: "image/png"}, nil
}

type failingModuleRepo struct {
	repos.WorldModuleRepo
}

func (r failingModuleRepo) CreateBatch(dbctx.Context, []*worlds.WorldModule) error {
	return errors.New("disk full")
}

type fixture struct {
	worlds  repos.WorldRepo
	modules repos.WorldModuleRepo
	events  repos.WorldStatusEventRepo
	agg     domainagg.WorldAggregate
	ai      *fakeAI
	p       *Pipeline
}

func newFixture(t *testing.T, brokenBatch bool) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &fixture{
		worlds:  repos.NewWorldRepo(db, log),
		modules: repos.NewWorldModuleRepo(db, log),
		events:  repos.NewWorldStatusEventRepo(db, log),
		ai:      newFakeAI(),
	}
	var aggModules repos.WorldModuleRepo = f.modules
	if brokenBatch {
		aggModules = failingModuleRepo{WorldModuleRepo: f.modules}
	}
	f.agg = dataagg.NewWorldAggregate(dataagg.WorldAggregateDeps{
		Base:    dataagg.BaseDeps{DB: db, Log: log},
		Worlds:  f.worlds,
		Modules: aggModules,
		Events:  f.events,
	})
	store, err := assets.NewLocalStore(log, t.TempDir(), "http://assets.test")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	cover, err := media.NewCoverRenderer("")
	if err != nil {
		t.Fatalf("NewCoverRenderer: %v", err)
	}
	f.p = New(log, f.worlds, f.modules, f.agg, f.ai, store, cover, Config{
		MaxSourceChars:   1000,
		MaxImages:        4,
		ImageConcurrency: 2,
		ImageMaxSide:     8,
	})
	return f
}

func (f *fixture) create(t *testing.T) worlds.RunRef {
	t.Helper()
	w, err := f.agg.Create(context.Background(), domainagg.CreateWorldInput{
		OwnerID:       uuid.New(),
		Title:         "Sterne",
		Subject:       "Astronomie",
		SourceContent: "Die Sonne ist ein Stern.",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return worlds.RunRef{WorldID: w.ID, OwnerID: w.OwnerID, RunID: w.RunID}
}

func (f *fixture) load(t *testing.T, ref worlds.RunRef) (*worlds.World, []*worlds.WorldModule, []worlds.Status) {
	t.Helper()
	dbc := dbctx.Context{Ctx: context.Background()}
	w, err := f.worlds.GetByID(dbc, ref.WorldID)
	if err != nil || w == nil {
		t.Fatalf("GetByID: w=%v err=%v", w, err)
	}
	mods, err := f.modules.ListByWorld(dbc, ref.WorldID)
	if err != nil {
		t.Fatalf("ListByWorld: %v", err)
	}
	evs, err := f.events.ListByRun(dbc, ref.WorldID, ref.RunID)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	seq := make([]worlds.Status, 0, len(evs))
	for _, ev := range evs {
		seq = append(seq, ev.Status)
	}
	return w, mods, seq
}

func assertPrefixThenError(t *testing.T, seq []worlds.Status, wantLen int) {
	t.Helper()
	if len(seq) != wantLen {
		t.Fatalf("ledger length: want=%d got=%v", wantLen, seq)
	}
	for i := 0; i < len(seq)-1; i++ {
		if seq[i] != worlds.RunOrder[i] {
			t.Fatalf("ledger[%d]: want=%s got=%s (seq=%v)", i, worlds.RunOrder[i], seq[i], seq)
		}
	}
	if seq[len(seq)-1] != worlds.StatusError {
		t.Fatalf("ledger must end in error: %v", seq)
	}
}

func TestExecuteCompletes(t *testing.T) {
	f := newFixture(t, false)
	ref := f.create(t)

	final, err := f.p.Execute(context.Background(), ref)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if final != worlds.StatusComplete {
		t.Fatalf("final: want=complete got=%s", final)
	}

	w, mods, seq := f.load(t, ref)
	if w.Status != worlds.StatusComplete || w.ErrorDetail != nil {
		t.Fatalf("row: status=%s detail=%v", w.Status, w.ErrorDetail)
	}
	if len(seq) != len(worlds.RunOrder) {
		t.Fatalf("ledger: want=%v got=%v", worlds.RunOrder, seq)
	}
	for i := range seq {
		if seq[i] != worlds.RunOrder[i] {
			t.Fatalf("ledger[%d]: want=%s got=%s", i, worlds.RunOrder[i], seq[i])
		}
	}
	if len(mods) != 2 || w.ModuleCount != 2 {
		t.Fatalf("modules: want=2 got=%d (module_count=%d)", len(mods), w.ModuleCount)
	}
	for _, m := range mods {
		if strings.TrimSpace(m.Title) == "" || len(m.InteractionPayload) == 0 {
			t.Fatalf("module incomplete: %+v", m)
		}
	}
	if mods[0].ModuleType != worlds.ModuleKnowledge || mods[1].ModuleType != worlds.ModulePractice {
		t.Fatalf("module types: got=%s,%s", mods[0].ModuleType, mods[1].ModuleType)
	}
	if mods[0].ImageURL == nil || mods[1].ImageURL != nil {
		t.Fatalf("images: want first illustrated and second not, got=%v,%v", mods[0].ImageURL, mods[1].ImageURL)
	}
	if w.CoverImageURL == nil || !strings.HasPrefix(*w.CoverImageURL, "http://assets.test/") {
		t.Fatalf("cover: got=%v", w.CoverImageURL)
	}
	if w.ComponentCode == nil || w.Theme != "Sterne" {
		t.Fatalf("derived: component=%v theme=%q", w.ComponentCode, w.Theme)
	}
}

func TestExecuteRateLimitedDuringDesign(t *testing.T) {
	f := newFixture(t, false)
	f.ai.errs["design"] = aigateway.ErrRateLimited
	ref := f.create(t)

	final, err := f.p.Execute(context.Background(), ref)
	if !errors.Is(err, aigateway.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited got=%v", err)
	}
	if final != worlds.StatusError {
		t.Fatalf("final: want=error got=%s", final)
	}
	w, mods, seq := f.load(t, ref)
	if w.Status != worlds.StatusError || w.ErrorDetail == nil || !strings.Contains(*w.ErrorDetail, "rate limit") {
		t.Fatalf("row: status=%s detail=%v", w.Status, w.ErrorDetail)
	}
	if len(mods) != 0 {
		t.Fatalf("modules: want=0 got=%d", len(mods))
	}
	assertPrefixThenError(t, seq, 4)
}

func TestExecuteMalformedContentFails(t *testing.T) {
	f := newFixture(t, false)
	f.ai.replies["content"] = `{"modules": [{"title": "x", "payload": {"kind": "quiz"`
	ref := f.create(t)

	_, err := f.p.Execute(context.Background(), ref)
	if !errors.Is(err, aigateway.ErrMalformedOutput) {
		t.Fatalf("want ErrMalformedOutput got=%v", err)
	}
	w, mods, seq := f.load(t, ref)
	if w.Status != worlds.StatusError || len(mods) != 0 {
		t.Fatalf("want error with no modules, got status=%s modules=%d", w.Status, len(mods))
	}
	assertPrefixThenError(t, seq, 5)
}

func TestExecuteOptionalPhasesAreIsolated(t *testing.T) {
	f := newFixture(t, false)
	f.ai.textErr = &aigateway.UpstreamError{Status: 503, Body: "busy"}
	ref := f.create(t)

	final, err := f.p.Execute(context.Background(), ref)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if final != worlds.StatusComplete {
		t.Fatalf("final: want=complete got=%s", final)
	}
	w, mods, _ := f.load(t, ref)
	if w.ComponentCode != nil {
		t.Fatalf("component code must be empty after failure: %v", *w.ComponentCode)
	}
	if len(mods) != 2 {
		t.Fatalf("modules: want=2 got=%d", len(mods))
	}
}

func TestExecuteFinalizeFailureIsError(t *testing.T) {
	f := newFixture(t, true)
	ref := f.create(t)

	final, err := f.p.Execute(context.Background(), ref)
	if !domainagg.IsCode(err, domainagg.CodePersistence) {
		t.Fatalf("want persistence error got=%v", err)
	}
	if final != worlds.StatusError {
		t.Fatalf("final: want=error got=%s", final)
	}
	w, mods, seq := f.load(t, ref)
	if w.Status != worlds.StatusError || len(mods) != 0 || w.ModuleCount != 0 {
		t.Fatalf("row: status=%s modules=%d module_count=%d", w.Status, len(mods), w.ModuleCount)
	}
	assertPrefixThenError(t, seq, 7)
}

func TestExecuteSupersededRunStopsQuietly(t *testing.T) {
	f := newFixture(t, false)
	ref := f.create(t)
	if _, err := f.agg.Delete(context.Background(), ref.OwnerID, ref.WorldID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	final, err := f.p.Execute(context.Background(), ref)
	if err != nil {
		t.Fatalf("superseded run must not error: %v", err)
	}
	if final != "" {
		t.Fatalf("final: want empty got=%s", final)
	}
	if len(f.ai.calls) != 0 {
		t.Fatalf("no model calls expected, got=%v", f.ai.calls)
	}

	stale := f.create(t)
	stale.RunID = uuid.New()
	if _, err := f.p.Execute(context.Background(), stale); err != nil {
		t.Fatalf("stale run id must not error: %v", err)
	}
}

func TestRunReadsPayload(t *testing.T) {
	f := newFixture(t, false)
	ref := f.create(t)

	jc := runtime.NewContext(context.Background(), NewJob(ref, "req-1", ""), testutil.Logger(t))
	if err := f.p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	w, _, _ := f.load(t, ref)
	if w.Status != worlds.StatusComplete {
		t.Fatalf("status: want=complete got=%s", w.Status)
	}

	bad := runtime.NewContext(context.Background(), runtime.NewJob(JobType, uuid.New(), nil), testutil.Logger(t))
	if err := f.p.Run(bad); err == nil {
		t.Fatalf("expected payload error")
	}
}

func TestErrorDetail(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "generation failed"},
		{aigateway.ErrRateLimited, aigateway.ErrRateLimited.Error()},
		{context.Canceled, "generation interrupted; please start a new run"},
		{&aigateway.UpstreamError{Err: context.DeadlineExceeded}, ""},
	}
	for _, tc := range cases {
		got := ErrorDetail(tc.err)
		if tc.want == "" {
			if !strings.Contains(got, "ai gateway") {
				t.Fatalf("ErrorDetail(%v): want upstream message got=%q", tc.err, got)
			}
			continue
		}
		if got != tc.want {
			t.Fatalf("ErrorDetail(%v): want=%q got=%q", tc.err, tc.want, got)
		}
	}
	long := errors.New(strings.Repeat("x", 5000))
	if got := ErrorDetail(long); len(got) != maxErrorDetail {
		t.Fatalf("truncation: want=%d got=%d", maxErrorDetail, len(got))
	}
}
