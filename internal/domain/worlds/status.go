package worlds

import "strings"

// Status is the generation state of a world. It doubles as the run state machine.
type Status string

const (
	StatusPending             Status = "pending"
	StatusAnalyzing           Status = "analyzing"
	StatusDesigning           Status = "designing"
	StatusGenerating          Status = "generating"
	StatusGeneratingComponent Status = "generating_component"
	StatusFinalizing          Status = "finalizing"
	StatusImages              Status = "images"
	StatusComplete            Status = "complete"
	StatusError               Status = "error"
)

// RunOrder is the forward path of a successful run.
var RunOrder = []Status{
	StatusPending,
	StatusAnalyzing,
	StatusDesigning,
	StatusGenerating,
	StatusGeneratingComponent,
	StatusFinalizing,
	StatusImages,
	StatusComplete,
}

func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s == StatusError {
		return s, true
	}
	for _, known := range RunOrder {
		if s == known {
			return s, true
		}
	}
	return "", false
}

func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

func (s Status) position() int {
	for i, known := range RunOrder {
		if known == s {
			return i
		}
	}
	return -1
}

// Next returns the status that follows s on the forward path.
func (s Status) Next() (Status, bool) {
	i := s.position()
	if i < 0 || i >= len(RunOrder)-1 {
		return "", false
	}
	return RunOrder[i+1], true
}

// CanTransition reports whether a run may move from one status to another.
// Forward moves go one step at a time; error is reachable from any non-terminal status.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusError {
		return from.position() >= 0
	}
	next, ok := from.Next()
	return ok && next == to
}

// Predecessors lists the statuses a row must be in for a write of `to` to apply.
func Predecessors(to Status) []Status {
	if to == StatusError {
		return NonTerminal()
	}
	i := to.position()
	if i <= 0 {
		return nil
	}
	return []Status{RunOrder[i-1]}
}

func NonTerminal() []Status {
	out := make([]Status, 0, len(RunOrder)-1)
	for _, s := range RunOrder {
		if !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}

func StatusStrings(in []Status) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
