// Package catalog owns product entries: the (category, cut, product type)
// triples that ledger facts reference. Entries referenced by facts are
// deactivated rather than removed so historical facts always resolve.
package catalog

import (
	"context"
	"errors"
	"fmt"

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

const auditEntity = string(policy.EntityCatalogEntry)

// Store is the persistence port for catalog entries.
type Store interface {
	Create(ctx context.Context, e *Entry) error
	FindByID(ctx context.Context, id domain.EntryID) (*Entry, error)
	FindByKey(ctx context.Context, key Key) (*Entry, error)
	Execute(ctx context.Context, id domain.EntryID, check func(*Entry) error, apply func(*Entry)) (*Entry, error)
	List(ctx context.Context) ([]Entry, error)
}

type Service struct {
	entries  Store
	registry vocab.Registry
	auditor  *audit.Recorder
	tx       tx.Runner
}

func NewService(entries Store, registry vocab.Registry, auditor *audit.Recorder, runner tx.Runner) *Service {
	return &Service{entries: entries, registry: registry, auditor: auditor, tx: runner}
}

// List returns all catalog entries. Catalog reads are open to every
// authenticated principal; policy is still consulted for uniformity.
func (s *Service) List(ctx context.Context, actor models.Principal) ([]Entry, error) {
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityCatalogEntry, Verb: policy.VerbRead}, policy.Target{}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		return nil, err
	}
	entries, err := s.entries.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list catalog entries")
	}
	return entries, nil
}

// Get resolves one entry by ID.
func (s *Service) Get(ctx context.Context, actor models.Principal, id domain.EntryID) (*Entry, error) {
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityCatalogEntry, Verb: policy.VerbRead}, policy.Target{}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		return nil, err
	}
	e, err := s.entries.FindByID(ctx, id)
	if err != nil {
		return nil, wrapEntryErr(err, id)
	}
	return e, nil
}

// Create adds a catalog entry. Manager+ only; category and product type are
// vocabulary-checked before any state change.
func (s *Service) Create(ctx context.Context, actor models.Principal, category, cutName, productType string, sku, gradeSpec *string) (*Entry, error) {
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityCatalogEntry, Verb: policy.VerbCreate}, policy.Target{}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		return nil, err
	}
	if err := vocab.Require(ctx, s.registry, vocab.NamespaceCategory, category); err != nil {
		return nil, err
	}
	if err := vocab.Require(ctx, s.registry, vocab.NamespaceProductType, productType); err != nil {
		return nil, err
	}

	var created *Entry
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		e, err := NewEntry(domain.NewEntryID(), category, cutName, productType, sku, gradeSpec, requestcontext.Now(txCtx))
		if err != nil {
			return err
		}
		if err := s.entries.Create(txCtx, e); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "catalog entry with this category/cut/type already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "create catalog entry")
		}
		if err := s.auditor.Record(txCtx, auditEntity, e.ID.String(), audit.ActionCreate, actorID(actor), nil, e); err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update amends an entry's mutable fields (SKU, grade spec, active flag).
// The uniqueness triple is immutable; replace an entry instead of renaming it.
func (s *Service) Update(ctx context.Context, actor models.Principal, id domain.EntryID, upd EntryUpdate) (*Entry, error) {
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityCatalogEntry, Verb: policy.VerbUpdate}, policy.Target{}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		return nil, err
	}
	if upd.SKU != nil && len(*upd.SKU) > maxSKULen {
		return nil, dErrors.Validation("upc_sku", "must be 50 characters or less")
	}
	if upd.GradeSpec != nil && len(*upd.GradeSpec) > maxGradeSpecLen {
		return nil, dErrors.Validation("grade_spec", "must be 100 characters or less")
	}

	var updated *Entry
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var before Entry
		e, err := s.entries.Execute(txCtx, id,
			func(cur *Entry) error {
				before = *cur
				return nil
			},
			func(cur *Entry) {
				if upd.SKU != nil {
					cur.SKU = upd.SKU
				}
				if upd.GradeSpec != nil {
					cur.GradeSpec = upd.GradeSpec
				}
				if upd.Active != nil {
					cur.Active = *upd.Active
				}
				cur.UpdatedAt = requestcontext.Now(txCtx)
			},
		)
		if err != nil {
			return wrapEntryErr(err, id)
		}
		if err := s.auditor.Record(txCtx, auditEntity, id.String(), audit.ActionUpdate, actorID(actor), before, e); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Deactivate retires an entry. Facts referencing it stay valid.
func (s *Service) Deactivate(ctx context.Context, actor models.Principal, id domain.EntryID) (*Entry, error) {
	inactive := false
	return s.Update(ctx, actor, id, EntryUpdate{Active: &inactive})
}

// BulkImport upserts entries from a seed file. Rows that fail validation are
// counted and reported; valid rows are not rolled back by invalid ones.
func (s *Service) BulkImport(ctx context.Context, actor models.Principal, rows []ImportRow) (*ImportResult, error) {
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityCatalogEntry, Verb: policy.VerbCreate}, policy.Target{}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for i, row := range rows {
		if err := s.importRow(ctx, actor, row); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		result.Imported++
	}
	return result, nil
}

func (s *Service) importRow(ctx context.Context, actor models.Principal, row ImportRow) error {
	if err := vocab.Require(ctx, s.registry, vocab.NamespaceCategory, row.Category); err != nil {
		return err
	}
	if err := vocab.Require(ctx, s.registry, vocab.NamespaceProductType, row.ProductType); err != nil {
		return err
	}

	// Upsert on the uniqueness triple: an existing entry is refreshed, not
	// duplicated.
	existing, err := s.entries.FindByKey(ctx, Key{Category: row.Category, CutName: row.CutName, ProductType: row.ProductType})
	if err == nil {
		_, uerr := s.Update(ctx, actor, existing.ID, EntryUpdate{GradeSpec: row.GradeSpec})
		return uerr
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "lookup catalog entry")
	}

	_, cerr := s.Create(ctx, actor, row.Category, row.CutName, row.ProductType, nil, row.GradeSpec)
	return cerr
}

func actorID(actor models.Principal) *domain.PrincipalID {
	if actor.ID.IsNil() {
		return nil
	}
	id := actor.ID
	return &id
}

func wrapEntryErr(err error, id domain.EntryID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.NotFound("catalog entry", id.String())
	}
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "catalog store")
}
