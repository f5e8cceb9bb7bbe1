package worlds

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCoerceModuleTypeKnownAliases(t *testing.T) {
	for alias, want := range moduleTypeAliases {
		if got := CoerceModuleType(alias); got != want {
			t.Fatalf("CoerceModuleType(%q): want=%s got=%s", alias, want, got)
		}
	}
}

func TestCoerceModuleTypeNormalizesAndDefaults(t *testing.T) {
	cases := []struct {
		raw  string
		want ModuleType
	}{
		{"  Practice ", ModulePractice},
		{"FILL-IN-BLANK", ModulePractice},
		{"fill in blank", ModulePractice},
		{"Challenge", ModuleChallenge},
		{"", ModuleKnowledge},
		{"adventure", ModuleKnowledge},
		{"🙂", ModuleKnowledge},
	}
	for _, tc := range cases {
		if got := CoerceModuleType(tc.raw); got != tc.want {
			t.Fatalf("CoerceModuleType(%q): want=%s got=%s", tc.raw, tc.want, got)
		}
		if !CoerceModuleType(tc.raw).Valid() {
			t.Fatalf("CoerceModuleType(%q) produced value outside enum", tc.raw)
		}
	}
}

func TestEveryModuleTypeMapsToItself(t *testing.T) {
	for _, mt := range ModuleTypes {
		if got := CoerceModuleType(string(mt)); got != mt {
			t.Fatalf("CoerceModuleType(%q): want=%s got=%s", mt, mt, got)
		}
	}
}

func TestCanTransitionForwardOnly(t *testing.T) {
	for i := 0; i < len(RunOrder)-1; i++ {
		from, to := RunOrder[i], RunOrder[i+1]
		if !CanTransition(from, to) {
			t.Fatalf("CanTransition(%s,%s): want=true", from, to)
		}
		if CanTransition(to, from) {
			t.Fatalf("CanTransition(%s,%s): want=false", to, from)
		}
	}
	if CanTransition(StatusAnalyzing, StatusGenerating) {
		t.Fatalf("skipping a phase must not be allowed")
	}
}

func TestCanTransitionToError(t *testing.T) {
	for _, s := range NonTerminal() {
		if !CanTransition(s, StatusError) {
			t.Fatalf("CanTransition(%s,error): want=true", s)
		}
	}
	if CanTransition(StatusComplete, StatusError) {
		t.Fatalf("complete is terminal")
	}
	if CanTransition(StatusError, StatusPending) {
		t.Fatalf("error is terminal")
	}
}

func TestPredecessors(t *testing.T) {
	got := Predecessors(StatusDesigning)
	if len(got) != 1 || got[0] != StatusAnalyzing {
		t.Fatalf("Predecessors(designing): want=[analyzing] got=%v", got)
	}
	if len(Predecessors(StatusPending)) != 0 {
		t.Fatalf("pending has no predecessor inside a run")
	}
	if len(Predecessors(StatusError)) != len(RunOrder)-1 {
		t.Fatalf("Predecessors(error): want=%d got=%d", len(RunOrder)-1, len(Predecessors(StatusError)))
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := ParseStatus(" Images "); !ok || s != StatusImages {
		t.Fatalf("ParseStatus: want=images got=%s ok=%v", s, ok)
	}
	if _, ok := ParseStatus("paused"); ok {
		t.Fatalf("ParseStatus(paused): want=false")
	}
}

func TestStatusRowCarriesNullErrorDetail(t *testing.T) {
	row := StatusRow(uuid.New(), uuid.New(), StatusAnalyzing, nil, time.Now())
	if v, ok := row["error_detail"]; !ok || v != nil {
		t.Fatalf("error_detail: want explicit nil got=%v (present=%v)", v, ok)
	}
	if row["status"] != "analyzing" {
		t.Fatalf("status: want=analyzing got=%v", row["status"])
	}
}

func TestItemCount(t *testing.T) {
	p := InteractionPayload{Kind: PayloadQuiz, Questions: []QuizQuestion{{Question: "q", Options: []string{"a", "b"}}}}
	if p.ItemCount() != 1 {
		t.Fatalf("ItemCount: want=1 got=%d", p.ItemCount())
	}
	if (InteractionPayload{Kind: PayloadText}).ItemCount() != 0 {
		t.Fatalf("empty text payload should count zero")
	}
}
