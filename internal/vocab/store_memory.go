package vocab

import (
	"context"
	"sort"
	"sync"

	"shrinktrack/pkg/platform/tx"
)

// InMemory is the map-backed registry used in dev mode and unit tests.
type InMemory struct {
	mu     sync.RWMutex
	values map[string]map[string]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{values: make(map[string]map[string]struct{})}
}

func (s *InMemory) IsValid(_ context.Context, namespace, value string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[namespace][value]
	return ok, nil
}

func (s *InMemory) Values(_ context.Context, namespace string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.values[namespace]))
	for v := range s.values[namespace] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemory) Add(ctx context.Context, namespace, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.values[namespace]
	if !ok {
		ns = make(map[string]struct{})
		s.values[namespace] = ns
	}
	if _, exists := ns[value]; exists {
		return nil
	}
	ns[value] = struct{}{}
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.values[namespace], value)
	})
	return nil
}

func (s *InMemory) Remove(ctx context.Context, namespace, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[namespace][value]; !exists {
		return nil
	}
	delete(s.values[namespace], value)
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		ns, ok := s.values[namespace]
		if !ok {
			ns = make(map[string]struct{})
			s.values[namespace] = ns
		}
		ns[value] = struct{}{}
	})
	return nil
}
