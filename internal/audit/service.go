package audit

import (
	"context"

	"shrinktrack/internal/directory/models"
	"shrinktrack/internal/policy"
	"shrinktrack/pkg/requestcontext"
)

// Service exposes read access to the audit trail. Writes only happen through
// the Recorder inside governed mutations; there is no API to alter or remove
// entries.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns audit entries matching the filter, newest first. Reading the
// trail is restricted to the roles that can read every governed entity.
func (s *Service) List(ctx context.Context, p models.Principal, f Filter) ([]Entry, error) {
	d := policy.Authorize(p, policy.Operation{Entity: policy.EntityAuditEntry, Verb: policy.VerbRead}, policy.Target{}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		return nil, err
	}
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 200
	}
	return s.store.List(ctx, f)
}
