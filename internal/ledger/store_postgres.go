package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"shrinktrack/pkg/domain"
	"shrinktrack/pkg/platform/sentinel"
	txcontext "shrinktrack/pkg/platform/tx"
)

// PostgresStore persists facts and corrections. ExecuteFact and DeleteFact
// take a row lock with SELECT ... FOR UPDATE so the check callback and the
// write serialize per fact. Dimension filters join catalog_entries.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) q(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) CreateFact(ctx context.Context, f *Fact) error {
	query := `
		INSERT INTO ledger_facts (id, catalog_entry_id, store_id, recorded_by, occurred_at, event_type, weight_lbs, unit_cost, unit_price, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		uuid.UUID(f.ID), uuid.UUID(f.EntryID), f.StoreID, uuid.UUID(f.RecordedBy),
		f.OccurredAt, f.EventType, f.Weight, f.UnitCost, f.UnitPrice, f.Notes, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}
	return nil
}

const factColumns = `f.id, f.catalog_entry_id, f.store_id, f.recorded_by, f.occurred_at, f.event_type, f.weight_lbs, f.unit_cost, f.unit_price, f.notes, f.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (*Fact, error) {
	var (
		f          Fact
		id         uuid.UUID
		entryID    uuid.UUID
		recordedBy uuid.UUID
	)
	err := row.Scan(&id, &entryID, &f.StoreID, &recordedBy, &f.OccurredAt, &f.EventType,
		&f.Weight, &f.UnitCost, &f.UnitPrice, &f.Notes, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan fact: %w", err)
	}
	f.ID = domain.FactID(id)
	f.EntryID = domain.EntryID(entryID)
	f.RecordedBy = domain.PrincipalID(recordedBy)
	return &f, nil
}

func (s *PostgresStore) FindFact(ctx context.Context, id domain.FactID) (*Fact, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+factColumns+` FROM ledger_facts f WHERE f.id = $1`, uuid.UUID(id))
	return scanFact(row)
}

func (s *PostgresStore) ExecuteFact(ctx context.Context, id domain.FactID, check func(*Fact) error, apply func(*Fact)) (*Fact, error) {
	q := s.q(ctx)
	row := q.QueryRowContext(ctx,
		`SELECT `+factColumns+` FROM ledger_facts f WHERE f.id = $1 FOR UPDATE`, uuid.UUID(id))
	f, err := scanFact(row)
	if err != nil {
		return nil, err
	}
	if err := check(f); err != nil {
		return nil, err
	}
	apply(f)

	query := `
		UPDATE ledger_facts
		SET catalog_entry_id = $2, occurred_at = $3, event_type = $4, weight_lbs = $5, unit_cost = $6, unit_price = $7, notes = $8
		WHERE id = $1
	`
	if _, err := q.ExecContext(ctx, query,
		uuid.UUID(f.ID), uuid.UUID(f.EntryID), f.OccurredAt, f.EventType,
		f.Weight, f.UnitCost, f.UnitPrice, f.Notes,
	); err != nil {
		return nil, fmt.Errorf("update fact: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) DeleteFact(ctx context.Context, id domain.FactID, check func(*Fact) error) (*Fact, error) {
	q := s.q(ctx)
	row := q.QueryRowContext(ctx,
		`SELECT `+factColumns+` FROM ledger_facts f WHERE f.id = $1 FOR UPDATE`, uuid.UUID(id))
	f, err := scanFact(row)
	if err != nil {
		return nil, err
	}
	if err := check(f); err != nil {
		return nil, err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM ledger_facts WHERE id = $1`, uuid.UUID(id)); err != nil {
		return nil, fmt.Errorf("delete fact: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) ListFacts(ctx context.Context, f Filter) ([]Fact, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.StoreID != nil {
		add("f.store_id = $%d", *f.StoreID)
	}
	if f.DateFrom != nil {
		add("f.occurred_at >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("f.occurred_at <= $%d", *f.DateTo)
	}
	if len(f.EventTypes) > 0 {
		add("f.event_type = ANY($%d)", pq.Array(f.EventTypes))
	}
	if len(f.Categories) > 0 {
		add("e.category = ANY($%d)", pq.Array(f.Categories))
	}
	if len(f.Cuts) > 0 {
		add("e.cut_name = ANY($%d)", pq.Array(f.Cuts))
	}
	if len(f.ProductTypes) > 0 {
		add("e.product_type = ANY($%d)", pq.Array(f.ProductTypes))
	}

	query := `SELECT ` + factColumns + ` FROM ledger_facts f JOIN catalog_entries e ON e.id = f.catalog_entry_id`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY f.occurred_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	return s.queryFacts(ctx, query, args...)
}

func (s *PostgresStore) RecentFacts(ctx context.Context, storeID int64, limit int) ([]Fact, error) {
	query := `SELECT ` + factColumns + ` FROM ledger_facts f WHERE f.store_id = $1 ORDER BY f.created_at DESC LIMIT $2`
	return s.queryFacts(ctx, query, storeID, limit)
}

func (s *PostgresStore) queryFacts(ctx context.Context, query string, args ...any) ([]Fact, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateCorrection(ctx context.Context, c *Correction) error {
	query := `
		INSERT INTO corrections (id, fact_id, author_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID), uuid.UUID(c.FactID), uuid.UUID(c.AuthorID), c.Reason, c.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert correction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCorrections(ctx context.Context, factID domain.FactID) ([]Correction, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT id, fact_id, author_id, reason, created_at FROM corrections WHERE fact_id = $1 ORDER BY created_at`,
		uuid.UUID(factID))
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	defer rows.Close()

	var out []Correction
	for rows.Next() {
		var (
			c        Correction
			id       uuid.UUID
			fID      uuid.UUID
			authorID uuid.UUID
		)
		if err := rows.Scan(&id, &fID, &authorID, &c.Reason, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		c.ID = domain.CorrectionID(id)
		c.FactID = domain.FactID(fID)
		c.AuthorID = domain.PrincipalID(authorID)
		out = append(out, c)
	}
	return out, rows.Err()
}
