package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"shrinktrack/pkg/domain"
	"shrinktrack/pkg/platform/sentinel"
	txcontext "shrinktrack/pkg/platform/tx"
)

// PostgresStore persists catalog entries. The uniqueness triple is enforced
// by a unique index; violations surface as sentinel.ErrConflict.
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

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (s *PostgresStore) Create(ctx context.Context, e *Entry) error {
	query := `
		INSERT INTO catalog_entries (id, upc_sku, category, cut_name, product_type, grade_spec, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		uuid.UUID(e.ID), e.SKU, e.Category, e.CutName, e.ProductType, e.GradeSpec, e.Active, e.CreatedAt, e.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert catalog entry: %w", err)
	}
	return nil
}

const entryColumns = `id, upc_sku, category, cut_name, product_type, grade_spec, active, created_at, updated_at`

func scanEntry(row *sql.Row) (*Entry, error) {
	var (
		e  Entry
		id uuid.UUID
	)
	if err := row.Scan(&id, &e.SKU, &e.Category, &e.CutName, &e.ProductType, &e.GradeSpec, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan catalog entry: %w", err)
	}
	e.ID = domain.EntryID(id)
	return &e, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.EntryID) (*Entry, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM catalog_entries WHERE id = $1`, uuid.UUID(id))
	return scanEntry(row)
}

func (s *PostgresStore) FindByKey(ctx context.Context, key Key) (*Entry, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM catalog_entries WHERE category = $1 AND cut_name = $2 AND product_type = $3`,
		key.Category, key.CutName, key.ProductType)
	return scanEntry(row)
}

func (s *PostgresStore) Execute(ctx context.Context, id domain.EntryID, check func(*Entry) error, apply func(*Entry)) (*Entry, error) {
	q := s.q(ctx)
	row := q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM catalog_entries WHERE id = $1 FOR UPDATE`, uuid.UUID(id))
	e, err := scanEntry(row)
	if err != nil {
		return nil, err
	}
	if err := check(e); err != nil {
		return nil, err
	}
	apply(e)

	query := `
		UPDATE catalog_entries
		SET upc_sku = $2, grade_spec = $3, active = $4, updated_at = $5
		WHERE id = $1
	`
	if _, err := q.ExecContext(ctx, query,
		uuid.UUID(e.ID), e.SKU, e.GradeSpec, e.Active, e.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update catalog entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+entryColumns+` FROM catalog_entries ORDER BY category, cut_name, product_type`)
	if err != nil {
		return nil, fmt.Errorf("list catalog entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			id uuid.UUID
		)
		if err := rows.Scan(&id, &e.SKU, &e.Category, &e.CutName, &e.ProductType, &e.GradeSpec, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan catalog entry: %w", err)
		}
		e.ID = domain.EntryID(id)
		out = append(out, e)
	}
	return out, rows.Err()
}
