// Package store owns the in-memory pass working set: the two disjoint
// collections partitioned by pass type, the visible subset, per-pass
// in-flight action flags, and the last error/success messages. Only the
// lifecycle orchestrator mutates it.
package store

import (
	"sync"

	"github.com/securelane/gatepass/internal/domain"
)

type Store struct {
	mu sync.Mutex

	passes    []domain.VisitorPass // ONE_TIME and PERMANENT
	recurring []domain.VisitorPass // RECURRING only
	visible   []domain.VisitorPass

	inflight map[inflightKey]struct{}

	lastError   string
	lastSuccess string
}

type inflightKey struct {
	id     string
	action domain.Action
}

func New() *Store {
	return &Store{inflight: make(map[inflightKey]struct{})}
}

// ReplacePasses swaps the one-time/permanent collection wholesale. Records
// whose pass type belongs to the recurring collection are dropped, and
// duplicate ids keep their first occurrence, so repeated refreshes converge.
func (s *Store) ReplacePasses(passes []domain.VisitorPass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passes = dedupe(passes, false)
}

// ReplaceRecurring swaps the recurring collection wholesale.
func (s *Store) ReplaceRecurring(passes []domain.VisitorPass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recurring = dedupe(passes, true)
}

func dedupe(passes []domain.VisitorPass, recurring bool) []domain.VisitorPass {
	out := make([]domain.VisitorPass, 0, len(passes))
	seen := make(map[string]struct{}, len(passes))
	for _, p := range passes {
		if p.IsRecurring() != recurring {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Prepend inserts a freshly created pass at the head of its collection,
// removing any stale record with the same id first.
func (s *Store) Prepend(p domain.VisitorPass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.IsRecurring() {
		s.recurring = append([]domain.VisitorPass{p}, removeByID(s.recurring, p.ID)...)
	} else {
		s.passes = append([]domain.VisitorPass{p}, removeByID(s.passes, p.ID)...)
	}
}

func removeByID(passes []domain.VisitorPass, id string) []domain.VisitorPass {
	out := passes[:0]
	for _, p := range passes {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// Update applies fn to the pass with the given id in whichever collection
// holds it. One parameterized mutation covers both collections so their
// update logic cannot diverge.
func (s *Store) Update(id string, fn func(*domain.VisitorPass)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, coll := range [][]domain.VisitorPass{s.passes, s.recurring} {
		for i := range coll {
			if coll[i].ID == id {
				fn(&coll[i])
				return true
			}
		}
	}
	return false
}

// Get returns a copy of the pass with the given id.
func (s *Store) Get(id string) (domain.VisitorPass, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, coll := range [][]domain.VisitorPass{s.passes, s.recurring} {
		for i := range coll {
			if coll[i].ID == id {
				return coll[i], true
			}
		}
	}
	return domain.VisitorPass{}, false
}

func (s *Store) Passes() []domain.VisitorPass {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.VisitorPass(nil), s.passes...)
}

func (s *Store) Recurring() []domain.VisitorPass {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.VisitorPass(nil), s.recurring...)
}

func (s *Store) SetVisible(passes []domain.VisitorPass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = passes
}

func (s *Store) Visible() []domain.VisitorPass {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.VisitorPass(nil), s.visible...)
}

// BeginAction marks an action in flight for a pass. Returns false when the
// same action is already pending, so duplicate requests never leave the
// console.
func (s *Store) BeginAction(id string, a domain.Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := inflightKey{id: id, action: a}
	if _, pending := s.inflight[key]; pending {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Store) EndAction(id string, a domain.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, inflightKey{id: id, action: a})
}

// ActionPending reports whether an action is currently in flight for a pass.
func (s *Store) ActionPending(id string, a domain.Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, pending := s.inflight[inflightKey{id: id, action: a}]
	return pending
}

func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = msg
}

func (s *Store) SetSuccess(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSuccess = msg
}

func (s *Store) Messages() (lastError, lastSuccess string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError, s.lastSuccess
}
