package catalog

import (
	"context"
	"sort"
	"sync"

	"shrinktrack/pkg/domain"
	"shrinktrack/pkg/platform/sentinel"
	"shrinktrack/pkg/platform/tx"
)

type InMemory struct {
	mu      sync.RWMutex
	entries map[domain.EntryID]Entry
	byKey   map[Key]domain.EntryID
}

func NewInMemory() *InMemory {
	return &InMemory{
		entries: make(map[domain.EntryID]Entry),
		byKey:   make(map[Key]domain.EntryID),
	}
}

func (s *InMemory) Create(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := e.Key()
	if _, exists := s.byKey[key]; exists {
		return sentinel.ErrConflict
	}

	id := e.ID
	s.entries[id] = *e
	s.byKey[key] = id
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.entries, id)
		delete(s.byKey, key)
	})
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.EntryID) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (s *InMemory) FindByKey(_ context.Context, key Key) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	e := s.entries[id]
	return &e, nil
}

func (s *InMemory) Execute(ctx context.Context, id domain.EntryID, check func(*Entry) error, apply func(*Entry)) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := check(&cur); err != nil {
		return nil, err
	}

	prev := s.entries[id]
	apply(&cur)
	s.entries[id] = cur
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.entries[id] = prev
	})
	return &cur, nil
}

func (s *InMemory) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].CutName < out[j].CutName
	})
	return out, nil
}
