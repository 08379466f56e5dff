package vocab

import (
	"context"
	"database/sql"
	"fmt"

	txcontext "shrinktrack/pkg/platform/tx"
)

// PostgresStore keeps vocabulary values in the app_vocab lookup table. Add is
// idempotent via ON CONFLICT DO NOTHING so seeding can run on every boot.
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

func (s *PostgresStore) IsValid(ctx context.Context, namespace, value string) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM app_vocab WHERE namespace = $1 AND value = $2)`,
		namespace, value,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("vocab lookup: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Values(ctx context.Context, namespace string) ([]string, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT value FROM app_vocab WHERE namespace = $1 ORDER BY value`, namespace)
	if err != nil {
		return nil, fmt.Errorf("vocab values: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan vocab value: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Add(ctx context.Context, namespace, value string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO app_vocab (namespace, value) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		namespace, value)
	if err != nil {
		return fmt.Errorf("add vocab value: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, namespace, value string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM app_vocab WHERE namespace = $1 AND value = $2`,
		namespace, value)
	if err != nil {
		return fmt.Errorf("remove vocab value: %w", err)
	}
	return nil
}
