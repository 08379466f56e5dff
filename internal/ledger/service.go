package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"shrinktrack/internal/audit"
	"shrinktrack/internal/catalog"
	"shrinktrack/internal/directory/models"
	"shrinktrack/internal/platform/metrics"
	"shrinktrack/internal/policy"
	"shrinktrack/internal/vocab"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/platform/sentinel"
	"shrinktrack/pkg/platform/tx"
	"shrinktrack/pkg/requestcontext"
)

const (
	factEntity       = string(policy.EntityLedgerFact)
	correctionEntity = string(policy.EntityCorrection)

	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// Store is the persistence port for facts and corrections. ExecuteFact and
// DeleteFact run their check callback while holding the per-fact lock so the
// edit-window decision and the write are one atomic unit.
type Store interface {
	CreateFact(ctx context.Context, f *Fact) error
	FindFact(ctx context.Context, id domain.FactID) (*Fact, error)
	ExecuteFact(ctx context.Context, id domain.FactID, check func(*Fact) error, apply func(*Fact)) (*Fact, error)
	DeleteFact(ctx context.Context, id domain.FactID, check func(*Fact) error) (*Fact, error)
	ListFacts(ctx context.Context, f Filter) ([]Fact, error)
	RecentFacts(ctx context.Context, storeID int64, limit int) ([]Fact, error)
	CreateCorrection(ctx context.Context, c *Correction) error
	ListCorrections(ctx context.Context, factID domain.FactID) ([]Correction, error)
}

// CatalogLookup is the slice of the catalog the ledger needs: resolving the
// referenced entry for the active-entry check on creates.
type CatalogLookup interface {
	FindByID(ctx context.Context, id domain.EntryID) (*catalog.Entry, error)
}

type Service struct {
	facts    Store
	entries  CatalogLookup
	registry vocab.Registry
	auditor  *audit.Recorder
	tx       tx.Runner
	metrics  *metrics.Metrics
}

func NewService(facts Store, entries CatalogLookup, registry vocab.Registry, auditor *audit.Recorder, runner tx.Runner, m *metrics.Metrics) *Service {
	return &Service{facts: facts, entries: entries, registry: registry, auditor: auditor, tx: runner, metrics: m}
}

func (s *Service) deny(d policy.Decision) error {
	err := d.Err()
	if err != nil {
		s.metrics.IncrementPolicyDenials(string(d.Reason))
	}
	return err
}

// CreateFactInput is the caller-supplied shape of a new fact.
type CreateFactInput struct {
	EntryID    domain.EntryID
	StoreID    int64
	OccurredAt time.Time
	EventType  string
	Weight     decimal.Decimal
	UnitCost   decimal.Decimal
	UnitPrice  decimal.Decimal
	Notes      *string
}

// CreateFact records a shrink event. Authorization, then field and
// vocabulary validation, then the catalog-entry check — all before any state
// change, so a rejected create has zero observable effect.
func (s *Service) CreateFact(ctx context.Context, actor models.Principal, in CreateFactInput) (*Fact, error) {
	now := requestcontext.Now(ctx)
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityLedgerFact, Verb: policy.VerbCreate}, policy.Target{StoreID: in.StoreID}, now)
	if err := s.deny(d); err != nil {
		return nil, err
	}

	fact, err := NewFact(domain.NewFactID(), in.EntryID, in.StoreID, actor.ID, in.OccurredAt, in.EventType, in.Weight, in.UnitCost, in.UnitPrice, in.Notes, now)
	if err != nil {
		return nil, err
	}
	if err := vocab.Require(ctx, s.registry, vocab.NamespaceEventType, in.EventType); err != nil {
		return nil, err
	}
	entry, err := s.entries.FindByID(ctx, in.EntryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.NotFound("catalog entry", in.EntryID.String())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve catalog entry")
	}
	if !entry.Active {
		return nil, dErrors.Validation("catalog_entry_id", "entry is deactivated")
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.facts.CreateFact(txCtx, fact); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create fact")
		}
		return s.auditor.Record(txCtx, factEntity, fact.ID.String(), audit.ActionCreate, actorID(actor), nil, fact)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementFactsRecorded()
	return fact, nil
}

// UpdateFact amends a fact. The authorization check — including the edit
// window against the fact's creation time — runs inside the per-fact
// critical section, so the window decision and the write are atomic.
func (s *Service) UpdateFact(ctx context.Context, actor models.Principal, id domain.FactID, upd FactUpdate) (*Fact, error) {
	if err := validateUpdate(upd); err != nil {
		return nil, err
	}

	var updated *Fact
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		var before Fact
		fact, err := s.facts.ExecuteFact(txCtx, id,
			func(cur *Fact) error {
				d := policy.Authorize(actor,
					policy.Operation{Entity: policy.EntityLedgerFact, Verb: policy.VerbUpdate},
					policy.Target{StoreID: cur.StoreID, FactCreatedAt: cur.CreatedAt}, now)
				if err := s.deny(d); err != nil {
					return err
				}
				if upd.EventType != nil {
					if err := vocab.Require(txCtx, s.registry, vocab.NamespaceEventType, *upd.EventType); err != nil {
						return err
					}
				}
				if upd.EntryID != nil {
					entry, err := s.entries.FindByID(txCtx, *upd.EntryID)
					if err != nil {
						if errors.Is(err, sentinel.ErrNotFound) {
							return dErrors.NotFound("catalog entry", upd.EntryID.String())
						}
						return dErrors.Wrap(err, dErrors.CodeInternal, "resolve catalog entry")
					}
					if !entry.Active {
						return dErrors.Validation("catalog_entry_id", "entry is deactivated")
					}
				}
				before = *cur
				return nil
			},
			func(cur *Fact) {
				applyUpdate(cur, upd)
			},
		)
		if err != nil {
			return wrapFactErr(err, id)
		}
		if err := s.auditor.Record(txCtx, factEntity, id.String(), audit.ActionUpdate, actorID(actor), before, fact); err != nil {
			return err
		}
		updated = fact
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteFact removes a fact. Manager+ within the fact's store; the
// authorization runs under the per-fact lock like updates do.
func (s *Service) DeleteFact(ctx context.Context, actor models.Principal, id domain.FactID) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		now := requestcontext.Now(txCtx)
		fact, err := s.facts.DeleteFact(txCtx, id, func(cur *Fact) error {
			d := policy.Authorize(actor,
				policy.Operation{Entity: policy.EntityLedgerFact, Verb: policy.VerbDelete},
				policy.Target{StoreID: cur.StoreID}, now)
			return s.deny(d)
		})
		if err != nil {
			return wrapFactErr(err, id)
		}
		return s.auditor.Record(txCtx, factEntity, id.String(), audit.ActionDelete, actorID(actor), fact, nil)
	})
}

// GetFact resolves one fact, store-scoped.
func (s *Service) GetFact(ctx context.Context, actor models.Principal, id domain.FactID) (*Fact, error) {
	fact, err := s.facts.FindFact(ctx, id)
	if err != nil {
		return nil, wrapFactErr(err, id)
	}
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityLedgerFact, Verb: policy.VerbRead}, policy.Target{StoreID: fact.StoreID}, requestcontext.Now(ctx))
	if err := s.deny(d); err != nil {
		return nil, err
	}
	return fact, nil
}

// ListFacts queries the ledger. Principals outside auditor/admin are pinned
// to their own store regardless of the filter they pass; the effective store
// is then re-checked against policy, never trusted from input.
func (s *Service) ListFacts(ctx context.Context, actor models.Principal, f Filter) ([]Fact, error) {
	f, target := s.pinScope(actor, f)
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityLedgerFact, Verb: policy.VerbRead}, target, requestcontext.Now(ctx))
	if err := s.deny(d); err != nil {
		return nil, err
	}
	facts, err := s.facts.ListFacts(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list facts")
	}
	return facts, nil
}

// RecentFacts is the "latest events" feed for a store.
func (s *Service) RecentFacts(ctx context.Context, actor models.Principal, storeID int64, limit int) ([]Fact, error) {
	if !isGlobalReader(actor) {
		storeID = actor.StoreID
	}
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityLedgerFact, Verb: policy.VerbRead}, policy.Target{StoreID: storeID}, requestcontext.Now(ctx))
	if err := s.deny(d); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	facts, err := s.facts.RecentFacts(ctx, storeID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "recent facts")
	}
	return facts, nil
}

// CreateCorrection appends an annotation to an existing fact. The fact is
// read but never written; corrections accumulate.
func (s *Service) CreateCorrection(ctx context.Context, actor models.Principal, factID domain.FactID, reason string) (*Correction, error) {
	now := requestcontext.Now(ctx)
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityCorrection, Verb: policy.VerbCreate}, policy.Target{}, now)
	if err := s.deny(d); err != nil {
		return nil, err
	}
	if _, err := s.facts.FindFact(ctx, factID); err != nil {
		return nil, wrapFactErr(err, factID)
	}
	corr, err := NewCorrection(domain.NewCorrectionID(), factID, actor.ID, reason, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.facts.CreateCorrection(txCtx, corr); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.NotFound("ledger fact", factID.String())
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "create correction")
		}
		return s.auditor.Record(txCtx, correctionEntity, corr.ID.String(), audit.ActionCreate, actorID(actor), nil, corr)
	})
	if err != nil {
		return nil, err
	}
	return corr, nil
}

// ListCorrections returns all corrections for a fact, oldest first. Read
// scope follows the referenced fact's store.
func (s *Service) ListCorrections(ctx context.Context, actor models.Principal, factID domain.FactID) ([]Correction, error) {
	fact, err := s.facts.FindFact(ctx, factID)
	if err != nil {
		return nil, wrapFactErr(err, factID)
	}
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityCorrection, Verb: policy.VerbRead}, policy.Target{StoreID: fact.StoreID}, requestcontext.Now(ctx))
	if err := s.deny(d); err != nil {
		return nil, err
	}
	corrections, err := s.facts.ListCorrections(ctx, factID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list corrections")
	}
	return corrections, nil
}

func isGlobalReader(p models.Principal) bool {
	return p.Role == models.RoleAuditor || p.Role == models.RoleAdmin
}

// pinScope resolves the effective store scope of a read. Store-scoped roles
// always query their own store; global readers may query any store or all of
// them (nil filter).
func (s *Service) pinScope(actor models.Principal, f Filter) (Filter, policy.Target) {
	if !isGlobalReader(actor) {
		store := actor.StoreID
		f.StoreID = &store
		return f, policy.Target{StoreID: store}
	}
	if f.StoreID != nil {
		return f, policy.Target{StoreID: *f.StoreID}
	}
	return f, policy.Target{}
}

func validateUpdate(upd FactUpdate) error {
	if upd.Weight != nil {
		if err := ValidateWeight(*upd.Weight); err != nil {
			return err
		}
	}
	if upd.UnitCost != nil {
		if err := ValidateMoney("unit_cost", *upd.UnitCost); err != nil {
			return err
		}
	}
	if upd.UnitPrice != nil {
		if err := ValidateMoney("unit_price", *upd.UnitPrice); err != nil {
			return err
		}
	}
	if upd.OccurredAt != nil && upd.OccurredAt.IsZero() {
		return dErrors.Validation("occurred_at", "must be set")
	}
	return validateNotes(upd.Notes)
}

func applyUpdate(cur *Fact, upd FactUpdate) {
	if upd.EntryID != nil {
		cur.EntryID = *upd.EntryID
	}
	if upd.OccurredAt != nil {
		cur.OccurredAt = *upd.OccurredAt
	}
	if upd.EventType != nil {
		cur.EventType = *upd.EventType
	}
	if upd.Weight != nil {
		cur.Weight = *upd.Weight
	}
	if upd.UnitCost != nil {
		cur.UnitCost = *upd.UnitCost
	}
	if upd.UnitPrice != nil {
		cur.UnitPrice = *upd.UnitPrice
	}
	if upd.Notes != nil {
		cur.Notes = upd.Notes
	}
}

func actorID(actor models.Principal) *domain.PrincipalID {
	if actor.ID.IsNil() {
		return nil
	}
	id := actor.ID
	return &id
}

func wrapFactErr(err error, id domain.FactID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.NotFound("ledger fact", id.String())
	}
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "ledger store")
}
