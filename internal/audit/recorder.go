// Package audit captures before/after state for every governed mutation. The
// recorder is invoked synchronously inside the same unit of work as the
// mutation it describes: if the audit entry cannot be committed, the mutation
// fails and rolls back with it. No backfill, no suppression, no retroactive
// edits.
package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"shrinktrack/internal/platform/metrics"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/requestcontext"
)

// Store appends and lists audit entries. Append implementations must honor
// the enclosing unit of work (SQL transaction from context, or in-memory
// rollback registration) so "mutation + audit" commits atomically.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// Recorder builds and persists audit entries for governed mutations.
type Recorder struct {
	store   Store
	metrics *metrics.Metrics
}

func NewRecorder(store Store, m *metrics.Metrics) *Recorder {
	return &Recorder{store: store, metrics: m}
}

// Record writes exactly one entry for a successful mutation. before and after
// are the governed entity's state snapshots; pass nil for the side the action
// does not have. Any store failure comes back as CodeAuditFailure, which the
// enclosing unit of work treats as fatal.
func (r *Recorder) Record(ctx context.Context, entity, entityID string, action Action, actor *domain.PrincipalID, before, after any) error {
	entry := Entry{
		ID:       uuid.New(),
		Entity:   entity,
		EntityID: entityID,
		Action:   action,
		ActorID:  actor,
		At:       requestcontext.Now(ctx),
	}

	var err error
	if entry.Before, err = marshalSnapshot(before); err != nil {
		return dErrors.Wrap(err, dErrors.CodeAuditFailure, "marshal before-state")
	}
	if entry.After, err = marshalSnapshot(after); err != nil {
		return dErrors.Wrap(err, dErrors.CodeAuditFailure, "marshal after-state")
	}

	if err := validateSnapshots(entry); err != nil {
		return err
	}

	if err := r.store.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeAuditFailure, "append audit entry")
	}
	r.metrics.IncrementAuditEntries()
	return nil
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func validateSnapshots(e Entry) error {
	switch e.Action {
	case ActionCreate:
		if e.Before != nil || e.After == nil {
			return dErrors.New(dErrors.CodeAuditFailure, "create entry requires nil before and populated after")
		}
	case ActionUpdate:
		if e.Before == nil || e.After == nil {
			return dErrors.New(dErrors.CodeAuditFailure, "update entry requires both snapshots")
		}
	case ActionDelete:
		if e.Before == nil || e.After != nil {
			return dErrors.New(dErrors.CodeAuditFailure, "delete entry requires populated before and nil after")
		}
	default:
		return dErrors.Newf(dErrors.CodeAuditFailure, "unknown audit action %q", e.Action)
	}
	return nil
}
