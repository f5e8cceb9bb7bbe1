// Package reconcile folds a world change feed and a bulk fetch into one list.
//
// Apply and Load are pure: they never mutate their input state, so any
// ordering of live events against the fetch can be replayed in tests.
package reconcile

import (
	"fmt"
	"time"

	"github.com/yungbote/learnworld-backend/internal/domain/worlds"
)

type Row map[string]any

func (r Row) ID() string {
	if r == nil {
		return ""
	}
	switch v := r["id"].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func (r Row) Status() string {
	s, _ := r["status"].(string)
	return s
}

type Event struct {
	Type worlds.ChangeType
	Row  Row
}

// State is the ordered list of world rows, newest first.
type State struct {
	Rows []Row
	// deleted remembers ids removed by live events so a later bulk fetch
	// taken before the delete does not bring them back.
	deleted map[string]bool
}

func (s State) Index(id string) int {
	for i, r := range s.Rows {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

func (s State) Get(id string) (Row, bool) {
	if i := s.Index(id); i >= 0 {
		return s.Rows[i], true
	}
	return nil, false
}

// Apply folds one live event into the state.
// An insert for a known id is ignored, an update for an unknown id inserts it
// and a delete for an unknown id only records the tombstone.
func Apply(s State, ev Event) State {
	id := ev.Row.ID()
	if id == "" {
		return s
	}
	out := s.clone()
	switch ev.Type {
	case worlds.ChangeInsert:
		if out.Index(id) >= 0 {
			return s
		}
		delete(out.deleted, id)
		out.Rows = prepend(out.Rows, copyRow(ev.Row))
	case worlds.ChangeUpdate:
		if i := out.Index(id); i >= 0 {
			out.Rows[i] = merge(out.Rows[i], ev.Row)
			return out
		}
		delete(out.deleted, id)
		out.Rows = prepend(out.Rows, copyRow(ev.Row))
	case worlds.ChangeDelete:
		if i := out.Index(id); i >= 0 {
			out.Rows = append(out.Rows[:i:i], out.Rows[i+1:]...)
		}
		out.deleted[id] = true
	default:
		return s
	}
	return out
}

// Load folds a bulk fetch into a state that may already hold live rows.
// Fetched rows keep their order; rows only known from live events stay in front.
// When both sides know a row, the one with the later updated_at wins and the
// other only fills fields it lacks.
func Load(s State, fetched []Row) State {
	out := s.clone()
	seen := make(map[string]bool, len(fetched))
	loaded := make([]Row, 0, len(fetched))
	for _, f := range fetched {
		id := f.ID()
		if id == "" || seen[id] || out.deleted[id] {
			continue
		}
		seen[id] = true
		if live, ok := out.Get(id); ok {
			if newer(f, live) {
				loaded = append(loaded, merge(live, f))
			} else {
				loaded = append(loaded, merge(f, live))
			}
			continue
		}
		loaded = append(loaded, copyRow(f))
	}
	liveOnly := make([]Row, 0, len(out.Rows))
	for _, r := range out.Rows {
		if !seen[r.ID()] {
			liveOnly = append(liveOnly, r)
		}
	}
	out.Rows = append(liveOnly, loaded...)
	return out
}

// Replay applies events in order starting from s.
func Replay(s State, events ...Event) State {
	for _, ev := range events {
		s = Apply(s, ev)
	}
	return s
}

func (s State) clone() State {
	out := State{
		Rows:    make([]Row, len(s.Rows)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	copy(out.Rows, s.Rows)
	for k, v := range s.deleted {
		out.deleted[k] = v
	}
	return out
}

func prepend(rows []Row, r Row) []Row {
	out := make([]Row, 0, len(rows)+1)
	out = append(out, r)
	return append(out, rows...)
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// merge overlays patch on base into a new row.
func merge(base, patch Row) Row {
	out := copyRow(base)
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// newer reports whether a carries a strictly later updated_at than b.
func newer(a, b Row) bool {
	ta, okA := updatedAt(a)
	tb, okB := updatedAt(b)
	if !okA || !okB {
		return false
	}
	return ta.After(tb)
}

func updatedAt(r Row) (time.Time, bool) {
	switch v := r["updated_at"].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
