// Package rollup derives the reporting aggregates from the ledger. Rollups
// are never authoritative: every row is reproducible by re-scanning facts,
// and refresh publishes complete generations so readers never observe a
// half-updated aggregate.
package rollup

import (
	"time"

	"github.com/shopspring/decimal"
)

// StoreDaily is the (store, day) aggregate: summed weight and summed
// weight x unit_cost over all facts that occurred on that day.
type StoreDaily struct {
	StoreID     int64           `json:"store_id"`
	Day         time.Time       `json:"day"`
	TotalWeight decimal.Decimal `json:"total_weight_lbs"`
	TotalCost   decimal.Decimal `json:"total_cost"`
}

// StoreDailyCategory adds the category dimension.
type StoreDailyCategory struct {
	StoreID     int64           `json:"store_id"`
	Day         time.Time       `json:"day"`
	Category    string          `json:"category"`
	TotalWeight decimal.Decimal `json:"total_weight_lbs"`
	TotalCost   decimal.Decimal `json:"total_cost"`
}

// RefreshResult reports one refresh run.
type RefreshResult struct {
	Scope        *int64    `json:"scope,omitempty"`
	StoreDays    int       `json:"store_days"`
	CategoryRows int       `json:"category_rows"`
	ComputedAt   time.Time `json:"computed_at"`
}

// Snapshot is one immutable rollup generation for a single store scope.
// Readers hold a reference to a complete snapshot; refresh swaps the whole
// thing, never mutates one in place.
type Snapshot struct {
	StoreID    int64
	Daily      []StoreDaily
	ByCategory []StoreDailyCategory
	ComputedAt time.Time
}
