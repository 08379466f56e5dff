package ledger

import (
	"context"
	"slices"
	"sort"
	"sync"

	"shrinktrack/pkg/domain"
	"shrinktrack/pkg/platform/sentinel"
	"shrinktrack/pkg/platform/tx"
)

// InMemory is the map-backed fact store. Dimension filters (category, cut,
// product type) resolve through the supplied catalog lookup, mirroring the
// SQL store's join.
type InMemory struct {
	mu          sync.RWMutex
	facts       map[domain.FactID]Fact
	corrections map[domain.FactID][]Correction
	entries     CatalogLookup
}

func NewInMemory(entries CatalogLookup) *InMemory {
	return &InMemory{
		facts:       make(map[domain.FactID]Fact),
		corrections: make(map[domain.FactID][]Correction),
		entries:     entries,
	}
}

func (s *InMemory) CreateFact(ctx context.Context, f *Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.facts[f.ID]; exists {
		return sentinel.ErrConflict
	}
	id := f.ID
	s.facts[id] = *f
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.facts, id)
	})
	return nil
}

func (s *InMemory) FindFact(_ context.Context, id domain.FactID) (*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &f, nil
}

// ExecuteFact holds the store lock across check and apply so the edit-window
// decision and the write are one atomic unit.
func (s *InMemory) ExecuteFact(ctx context.Context, id domain.FactID, check func(*Fact) error, apply func(*Fact)) (*Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.facts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := check(&cur); err != nil {
		return nil, err
	}

	prev := s.facts[id]
	apply(&cur)
	s.facts[id] = cur
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.facts[id] = prev
	})
	return &cur, nil
}

func (s *InMemory) DeleteFact(ctx context.Context, id domain.FactID, check func(*Fact) error) (*Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.facts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := check(&cur); err != nil {
		return nil, err
	}

	prev := cur
	delete(s.facts, id)
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.facts[id] = prev
	})
	return &prev, nil
}

func (s *InMemory) ListFacts(ctx context.Context, f Filter) ([]Fact, error) {
	s.mu.RLock()
	candidates := make([]Fact, 0, len(s.facts))
	for _, fact := range s.facts {
		candidates = append(candidates, fact)
	}
	s.mu.RUnlock()

	var out []Fact
	for _, fact := range candidates {
		ok, err := s.matches(ctx, fact, f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, fact)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *InMemory) matches(ctx context.Context, fact Fact, f Filter) (bool, error) {
	if f.StoreID != nil && fact.StoreID != *f.StoreID {
		return false, nil
	}
	if f.DateFrom != nil && fact.OccurredAt.Before(*f.DateFrom) {
		return false, nil
	}
	if f.DateTo != nil && fact.OccurredAt.After(*f.DateTo) {
		return false, nil
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, fact.EventType) {
		return false, nil
	}
	if len(f.Categories) == 0 && len(f.Cuts) == 0 && len(f.ProductTypes) == 0 {
		return true, nil
	}

	entry, err := s.entries.FindByID(ctx, fact.EntryID)
	if err != nil {
		return false, err
	}
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, entry.Category) {
		return false, nil
	}
	if len(f.Cuts) > 0 && !slices.Contains(f.Cuts, entry.CutName) {
		return false, nil
	}
	if len(f.ProductTypes) > 0 && !slices.Contains(f.ProductTypes, entry.ProductType) {
		return false, nil
	}
	return true, nil
}

func (s *InMemory) RecentFacts(_ context.Context, storeID int64, limit int) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Fact
	for _, fact := range s.facts {
		if fact.StoreID == storeID {
			out = append(out, fact)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) CreateCorrection(ctx context.Context, c *Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.facts[c.FactID]; !ok {
		return sentinel.ErrNotFound
	}
	factID, corrID := c.FactID, c.ID
	s.corrections[factID] = append(s.corrections[factID], *c)
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.corrections[factID]
		for i, existing := range list {
			if existing.ID == corrID {
				s.corrections[factID] = append(list[:i], list[i+1:]...)
				break
			}
		}
	})
	return nil
}

func (s *InMemory) ListCorrections(_ context.Context, factID domain.FactID) ([]Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.corrections[factID]
	out := make([]Correction, len(list))
	copy(out, list)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
