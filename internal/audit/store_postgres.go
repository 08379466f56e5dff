package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"shrinktrack/pkg/domain"
	txcontext "shrinktrack/pkg/platform/tx"
)

// PostgresStore persists audit entries. Appends write through the transaction
// travelling in the context, so the entry commits or rolls back with the
// mutation it describes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO audit_entries (id, entity, entity_id, action, actor_id, at, before_state, after_state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	var actor *uuid.UUID
	if entry.ActorID != nil {
		u := uuid.UUID(*entry.ActorID)
		actor = &u
	}
	var before, after []byte
	if entry.Before != nil {
		before = entry.Before
	}
	if entry.After != nil {
		after = entry.After
	}
	if _, err := s.execer(ctx).ExecContext(ctx, query,
		entry.ID, entry.Entity, entry.EntityID, string(entry.Action), actor, entry.At, before, after,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.ActorID != nil {
		add("actor_id = $%d", uuid.UUID(*f.ActorID))
	}
	if f.From != nil {
		add("at >= $%d", *f.From)
	}
	if f.To != nil {
		add("at <= $%d", *f.To)
	}

	query := `SELECT id, entity, entity_id, action, actor_id, at, before_state, after_state FROM audit_entries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			action string
			actor  *uuid.UUID
			before []byte
			after  []byte
		)
		if err := rows.Scan(&e.ID, &e.Entity, &e.EntityID, &action, &actor, &e.At, &before, &after); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = Action(action)
		if actor != nil {
			id := domain.PrincipalID(*actor)
			e.ActorID = &id
		}
		if len(before) > 0 {
			e.Before = before
		}
		if len(after) > 0 {
			e.After = after
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
