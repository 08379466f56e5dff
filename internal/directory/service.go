// Package directory maps principals to role and store scope. It owns
// principal lifecycle: onboarding, role and store changes, deactivation.
// Principals are never hard-deleted.
package directory

import (
	"context"
	"errors"

	"shrinktrack/internal/audit"
	"shrinktrack/internal/directory/models"
	"shrinktrack/internal/policy"
	"shrinktrack/internal/vocab"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/platform/sentinel"
	"shrinktrack/pkg/platform/tx"
	"shrinktrack/pkg/requestcontext"
)

const auditEntity = string(policy.EntityPrincipal)

// Store is the persistence port for principals.
type Store interface {
	Create(ctx context.Context, p *models.Principal) error
	FindByID(ctx context.Context, id domain.PrincipalID) (*models.Principal, error)
	// Execute runs an atomic validate-then-mutate; the implementation holds
	// its lock (mutex or FOR UPDATE) across both callbacks.
	Execute(ctx context.Context, id domain.PrincipalID, check func(*models.Principal) error, apply func(*models.Principal)) (*models.Principal, error)
	List(ctx context.Context) ([]models.Principal, error)
}

// Service orchestrates principal lifecycle under policy and audit.
type Service struct {
	principals Store
	registry   vocab.Registry
	auditor    *audit.Recorder
	tx         tx.Runner
}

func NewService(principals Store, registry vocab.Registry, auditor *audit.Recorder, runner tx.Runner) *Service {
	return &Service{principals: principals, registry: registry, auditor: auditor, tx: runner}
}

// Lookup resolves a principal by identity. It is the authentication
// collaborator's entry point and is not itself policy-gated: the caller has
// no principal yet.
func (s *Service) Lookup(ctx context.Context, id domain.PrincipalID) (*models.Principal, error) {
	p, err := s.principals.FindByID(ctx, id)
	if err != nil {
		return nil, wrapPrincipalErr(err, id)
	}
	return p, nil
}

// Get returns a principal the actor is allowed to read: self, or same-store
// for manager/admin/auditor roles.
func (s *Service) Get(ctx context.Context, actor models.Principal, id domain.PrincipalID) (*models.Principal, error) {
	p, err := s.principals.FindByID(ctx, id)
	if err != nil {
		return nil, wrapPrincipalErr(err, id)
	}
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityPrincipal, Verb: policy.VerbRead},
		policy.Target{StoreID: p.StoreID, PrincipalID: p.ID}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the principals visible to the actor: every row the Principal
// Read rule allows. Rows the actor may not read are filtered, not errors;
// asking for the list is always legal, seeing a row is what policy governs.
func (s *Service) List(ctx context.Context, actor models.Principal) ([]models.Principal, error) {
	all, err := s.principals.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list principals")
	}
	now := requestcontext.Now(ctx)
	var out []models.Principal
	for _, p := range all {
		d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityPrincipal, Verb: policy.VerbRead},
			policy.Target{StoreID: p.StoreID, PrincipalID: p.ID}, now)
		if d.Allowed {
			out = append(out, p)
		}
	}
	return out, nil
}

// Create onboards a principal. Admin only; the role must exist in
// vocabulary("role"); the new principal starts active.
func (s *Service) Create(ctx context.Context, actor models.Principal, email string, role models.Role, storeID int64) (*models.Principal, error) {
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityPrincipal, Verb: policy.VerbCreate}, policy.Target{}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		return nil, err
	}
	if err := vocab.Require(ctx, s.registry, vocab.NamespaceRole, string(role)); err != nil {
		return nil, err
	}

	var created *models.Principal
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, err := models.NewPrincipal(domain.NewPrincipalID(), email, role, storeID, requestcontext.Now(txCtx))
		if err != nil {
			return err
		}
		if err := s.principals.Create(txCtx, p); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "principal email must be unique")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "create principal")
		}
		if err := s.auditor.Record(txCtx, auditEntity, p.ID.String(), audit.ActionCreate, actorID(actor), nil, p); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SetRole changes a principal's role. Admin only; vocabulary-checked.
func (s *Service) SetRole(ctx context.Context, actor models.Principal, id domain.PrincipalID, role models.Role) (*models.Principal, error) {
	if err := vocab.Require(ctx, s.registry, vocab.NamespaceRole, string(role)); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, id,
		func(*models.Principal) error { return nil },
		func(p *models.Principal) { p.ApplyRole(role, requestcontext.Now(ctx)) },
	)
}

// SetStore moves a principal to another store scope. Admin only.
func (s *Service) SetStore(ctx context.Context, actor models.Principal, id domain.PrincipalID, storeID int64) (*models.Principal, error) {
	if storeID <= 0 {
		return nil, dErrors.Validation("store_id", "must be positive")
	}
	return s.mutate(ctx, actor, id,
		func(*models.Principal) error { return nil },
		func(p *models.Principal) { p.ApplyStore(storeID, requestcontext.Now(ctx)) },
	)
}

// Deactivate retires a principal without deleting it.
func (s *Service) Deactivate(ctx context.Context, actor models.Principal, id domain.PrincipalID) (*models.Principal, error) {
	return s.mutate(ctx, actor, id,
		func(p *models.Principal) error { return p.CanDeactivate() },
		func(p *models.Principal) { p.ApplyDeactivation(requestcontext.Now(ctx)) },
	)
}

// Reactivate restores a deactivated principal.
func (s *Service) Reactivate(ctx context.Context, actor models.Principal, id domain.PrincipalID) (*models.Principal, error) {
	return s.mutate(ctx, actor, id,
		func(p *models.Principal) error { return p.CanReactivate() },
		func(p *models.Principal) { p.ApplyReactivation(requestcontext.Now(ctx)) },
	)
}

// mutate runs a policy-gated, audited update of one principal. The store's
// Execute holds the lock across validation and mutation, and the audit entry
// joins the same unit of work.
func (s *Service) mutate(ctx context.Context, actor models.Principal, id domain.PrincipalID, check func(*models.Principal) error, apply func(*models.Principal)) (*models.Principal, error) {
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityPrincipal, Verb: policy.VerbUpdate}, policy.Target{}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		return nil, err
	}

	var updated *models.Principal
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var before models.Principal
		p, err := s.principals.Execute(txCtx, id,
			func(cur *models.Principal) error {
				before = *cur
				return check(cur)
			},
			apply,
		)
		if err != nil {
			return wrapPrincipalErr(err, id)
		}
		if err := s.auditor.Record(txCtx, auditEntity, id.String(), audit.ActionUpdate, actorID(actor), before, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func actorID(actor models.Principal) *domain.PrincipalID {
	if actor.ID.IsNil() {
		return nil
	}
	id := actor.ID
	return &id
}

func wrapPrincipalErr(err error, id domain.PrincipalID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.NotFound("principal", id.String())
	}
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "principal store")
}
