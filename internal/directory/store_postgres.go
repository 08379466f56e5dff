package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"shrinktrack/internal/directory/models"
	"shrinktrack/pkg/domain"
	"shrinktrack/pkg/platform/sentinel"
	txcontext "shrinktrack/pkg/platform/tx"
)

// PostgresStore persists principals. Execute serializes per-row with
// SELECT ... FOR UPDATE inside the transaction travelling in the context.
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

func (s *PostgresStore) Create(ctx context.Context, p *models.Principal) error {
	query := `
		INSERT INTO principals (id, email, role, store_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.q(ctx).ExecContext(ctx, query,
		uuid.UUID(p.ID), p.Email, string(p.Role), p.StoreID, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert principal: %w", err)
	}
	return nil
}

const principalColumns = `id, email, role, store_id, active, created_at, updated_at`

func scanPrincipal(row *sql.Row) (*models.Principal, error) {
	var (
		p    models.Principal
		id   uuid.UUID
		role string
	)
	if err := row.Scan(&id, &p.Email, &role, &p.StoreID, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}
	p.ID = domain.PrincipalID(id)
	p.Role = models.Role(role)
	return &p, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.PrincipalID) (*models.Principal, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, uuid.UUID(id))
	return scanPrincipal(row)
}

func (s *PostgresStore) Execute(ctx context.Context, id domain.PrincipalID, check func(*models.Principal) error, apply func(*models.Principal)) (*models.Principal, error) {
	q := s.q(ctx)
	row := q.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1 FOR UPDATE`, uuid.UUID(id))
	p, err := scanPrincipal(row)
	if err != nil {
		return nil, err
	}
	if err := check(p); err != nil {
		return nil, err
	}
	apply(p)

	query := `
		UPDATE principals
		SET email = $2, role = $3, store_id = $4, active = $5, updated_at = $6
		WHERE id = $1
	`
	if _, err := q.ExecContext(ctx, query,
		uuid.UUID(p.ID), p.Email, string(p.Role), p.StoreID, p.Active, p.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update principal: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Principal, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+principalColumns+` FROM principals ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var out []models.Principal
	for rows.Next() {
		var (
			p    models.Principal
			id   uuid.UUID
			role string
		)
		if err := rows.Scan(&id, &p.Email, &role, &p.StoreID, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		p.ID = domain.PrincipalID(id)
		p.Role = models.Role(role)
		out = append(out, p)
	}
	return out, rows.Err()
}
