package rollup

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresPublisher mirrors each published generation into the rollup
// tables so SQL consumers (exports, BI) can read them. Delete + insert in
// one transaction: readers of the tables see the old generation or the new
// one, never a mix.
type PostgresPublisher struct {
	db *sql.DB
}

func NewPostgresPublisher(db *sql.DB) *PostgresPublisher {
	return &PostgresPublisher{db: db}
}

func (p *PostgresPublisher) Publish(ctx context.Context, scope int64, daily []StoreDaily, byCategory []StoreDailyCategory) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollup publish: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rollup_store_daily WHERE store_id = $1`, scope); err != nil {
		return fmt.Errorf("clear daily rollups: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rollup_store_daily_category WHERE store_id = $1`, scope); err != nil {
		return fmt.Errorf("clear category rollups: %w", err)
	}

	for _, row := range daily {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rollup_store_daily (store_id, day, total_weight_lbs, total_cost) VALUES ($1, $2, $3, $4)`,
			row.StoreID, row.Day, row.TotalWeight, row.TotalCost)
		if err != nil {
			return fmt.Errorf("insert daily rollup: %w", err)
		}
	}
	for _, row := range byCategory {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rollup_store_daily_category (store_id, day, category, total_weight_lbs, total_cost) VALUES ($1, $2, $3, $4, $5)`,
			row.StoreID, row.Day, row.Category, row.TotalWeight, row.TotalCost)
		if err != nil {
			return fmt.Errorf("insert category rollup: %w", err)
		}
	}

	return tx.Commit()
}
