package directory

import (
	"context"
	"strings"
	"sync"

	"shrinktrack/internal/directory/models"
	"shrinktrack/pkg/domain"
	"shrinktrack/pkg/platform/sentinel"
	"shrinktrack/pkg/platform/tx"
)

// InMemory keeps principals in a map. Mutations register compensations with
// the enclosing unit of work so a failed audit append undoes them.
type InMemory struct {
	mu         sync.RWMutex
	principals map[domain.PrincipalID]models.Principal
}

func NewInMemory() *InMemory {
	return &InMemory{principals: make(map[domain.PrincipalID]models.Principal)}
}

func (s *InMemory) Create(ctx context.Context, p *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.principals[p.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.principals {
		if strings.EqualFold(existing.Email, p.Email) {
			return sentinel.ErrConflict
		}
	}

	id := p.ID
	s.principals[id] = *p
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.principals, id)
	})
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.PrincipalID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

// Execute runs an atomic validate-then-mutate against one principal. The
// store lock is held across both steps, so no interleaving write can slip
// between check and apply.
func (s *InMemory) Execute(ctx context.Context, id domain.PrincipalID, check func(*models.Principal) error, apply func(*models.Principal)) (*models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.principals[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := check(&cur); err != nil {
		return nil, err
	}

	prev := s.principals[id]
	apply(&cur)
	s.principals[id] = cur
	tx.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.principals[id] = prev
	})
	return &cur, nil
}

func (s *InMemory) List(_ context.Context) ([]models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Principal, 0, len(s.principals))
	for _, p := range s.principals {
		out = append(out, p)
	}
	return out, nil
}
