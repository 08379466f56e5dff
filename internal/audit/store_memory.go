package audit

import (
	"context"
	"sync"

	"shrinktrack/pkg/platform/tx"
)

// InMemoryStore keeps audit entries in order of arrival. Appends register a
// compensation with the enclosing in-memory unit of work so a failed mutation
// leaves no orphan entry.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry

	// failNext forces the next Append to fail; tests use it to prove the
	// governing mutation rolls back with the audit entry.
	failNext error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// FailNextAppend makes the next Append return err. Test hook.
func (s *InMemoryStore) FailNextAppend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *InMemoryStore) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}

	s.entries = append(s.entries, entry)
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.entries {
			if e.ID == entry.ID {
				s.entries = append(s.entries[:i], s.entries[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (s *InMemoryStore) List(_ context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	// Newest first, matching the SQL store's ORDER BY at DESC.
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !matches(e, f) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func matches(e Entry, f Filter) bool {
	if f.Entity != "" && e.Entity != f.Entity {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ActorID != nil {
		if e.ActorID == nil || *e.ActorID != *f.ActorID {
			return false
		}
	}
	if f.From != nil && e.At.Before(*f.From) {
		return false
	}
	if f.To != nil && e.At.After(*f.To) {
		return false
	}
	return true
}
