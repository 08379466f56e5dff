package vocab

import (
	"context"
	"strings"

	"shrinktrack/internal/audit"
	"shrinktrack/internal/directory/models"
	"shrinktrack/internal/policy"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/platform/tx"
	"shrinktrack/pkg/requestcontext"
)

const auditEntity = string(policy.EntityVocabulary)

// Service fronts the registry with policy checks: reads are open, mutations
// are admin-only and audited.
type Service struct {
	store   Store
	auditor *audit.Recorder
	tx      tx.Runner
}

func NewService(store Store, auditor *audit.Recorder, runner tx.Runner) *Service {
	return &Service{store: store, auditor: auditor, tx: runner}
}

type valueChange struct {
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
}

func (s *Service) Values(ctx context.Context, actor models.Principal, namespace string) ([]string, error) {
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityVocabulary, Verb: policy.VerbRead}, policy.Target{}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		return nil, err
	}
	values, err := s.store.Values(ctx, namespace)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list vocabulary values")
	}
	return values, nil
}

// Add accepts a new value in a namespace. Duplicate adds are a no-op and do
// not produce an audit entry.
func (s *Service) Add(ctx context.Context, actor models.Principal, namespace, value string) error {
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityVocabulary, Verb: policy.VerbCreate}, policy.Target{}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		return err
	}
	namespace, value, err := normalize(namespace, value)
	if err != nil {
		return err
	}

	exists, err := s.store.IsValid(ctx, namespace, value)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "vocabulary lookup failed")
	}
	if exists {
		return nil
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Add(txCtx, namespace, value); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "add vocabulary value")
		}
		return s.auditor.Record(txCtx, auditEntity, namespace+"/"+value, audit.ActionCreate,
			actorID(actor), nil, valueChange{Namespace: namespace, Value: value})
	})
}

// Remove withdraws a value from its namespace. Rows already written with the
// value stay readable; only new writes are rejected from then on.
func (s *Service) Remove(ctx context.Context, actor models.Principal, namespace, value string) error {
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityVocabulary, Verb: policy.VerbDelete}, policy.Target{}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		return err
	}
	namespace, value, err := normalize(namespace, value)
	if err != nil {
		return err
	}

	exists, err := s.store.IsValid(ctx, namespace, value)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "vocabulary lookup failed")
	}
	if !exists {
		return dErrors.NotFound("vocabulary value", namespace+"/"+value)
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Remove(txCtx, namespace, value); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "remove vocabulary value")
		}
		return s.auditor.Record(txCtx, auditEntity, namespace+"/"+value, audit.ActionDelete,
			actorID(actor), valueChange{Namespace: namespace, Value: value}, nil)
	})
}

func normalize(namespace, value string) (string, string, error) {
	namespace = strings.TrimSpace(namespace)
	value = strings.TrimSpace(value)
	if namespace == "" {
		return "", "", dErrors.Validation("namespace", "must not be empty")
	}
	if value == "" {
		return "", "", dErrors.Validation("value", "must not be empty")
	}
	return namespace, value, nil
}

func actorID(actor models.Principal) *domain.PrincipalID {
	if actor.ID.IsNil() {
		return nil
	}
	id := actor.ID
	return &id
}
