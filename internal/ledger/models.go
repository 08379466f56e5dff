// Package ledger owns the shrink-event facts and their append-only
// corrections. Facts are immutable outside the edit window; corrections are
// the only amendment path after it closes.
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
)

// Fact is one recorded shrink event. StoreID is immutable once set; all
// other fields may be amended by lead+ roles while the edit window is open.
type Fact struct {
	ID         domain.FactID      `json:"id"`
	EntryID    domain.EntryID     `json:"catalog_entry_id"`
	StoreID    int64              `json:"store_id"`
	RecordedBy domain.PrincipalID `json:"recorded_by"`
	OccurredAt time.Time          `json:"occurred_at"`
	EventType  string             `json:"event_type"`
	Weight     decimal.Decimal    `json:"weight_lbs"`
	UnitCost   decimal.Decimal    `json:"unit_cost"`
	UnitPrice  decimal.Decimal    `json:"unit_price"`
	Notes      *string            `json:"notes,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

var (
	maxWeight = decimal.NewFromInt(500)
	maxMoney  = decimal.RequireFromString("999.9999")
)

const maxNotesLen = 500

// ValidateWeight enforces the scale envelope: positive, at most 500 lbs,
// three decimal places.
func ValidateWeight(w decimal.Decimal) error {
	if !w.IsPositive() {
		return dErrors.Validation("weight_lbs", "must be greater than zero")
	}
	if w.GreaterThan(maxWeight) {
		return dErrors.Validation("weight_lbs", "must be 500 or less")
	}
	if !w.Equal(w.Round(3)) {
		return dErrors.Validation("weight_lbs", "must have at most 3 decimal places")
	}
	return nil
}

// ValidateMoney enforces 0..999.9999 at four decimal places for unit cost
// and unit price.
func ValidateMoney(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return dErrors.Validation(field, "must not be negative")
	}
	if v.GreaterThan(maxMoney) {
		return dErrors.Validation(field, "must be 999.9999 or less")
	}
	if !v.Equal(v.Round(4)) {
		return dErrors.Validation(field, "must have at most 4 decimal places")
	}
	return nil
}

func validateNotes(notes *string) error {
	if notes != nil && len(*notes) > maxNotesLen {
		return dErrors.Validation("notes", "must be 500 characters or less")
	}
	return nil
}

// NewFact builds a validated fact. Vocabulary and catalog checks belong to
// the service; this covers the field invariants only.
func NewFact(id domain.FactID, entryID domain.EntryID, storeID int64, recordedBy domain.PrincipalID, occurredAt time.Time, eventType string, weight, unitCost, unitPrice decimal.Decimal, notes *string, now time.Time) (*Fact, error) {
	if entryID.IsNil() {
		return nil, dErrors.Validation("catalog_entry_id", "must be set")
	}
	if storeID <= 0 {
		return nil, dErrors.Validation("store_id", "must be positive")
	}
	if occurredAt.IsZero() {
		return nil, dErrors.Validation("occurred_at", "must be set")
	}
	if err := ValidateWeight(weight); err != nil {
		return nil, err
	}
	if err := ValidateMoney("unit_cost", unitCost); err != nil {
		return nil, err
	}
	if err := ValidateMoney("unit_price", unitPrice); err != nil {
		return nil, err
	}
	if err := validateNotes(notes); err != nil {
		return nil, err
	}
	return &Fact{
		ID:         id,
		EntryID:    entryID,
		StoreID:    storeID,
		RecordedBy: recordedBy,
		OccurredAt: occurredAt,
		EventType:  eventType,
		Weight:     weight,
		UnitCost:   unitCost,
		UnitPrice:  unitPrice,
		Notes:      notes,
		CreatedAt:  now,
	}, nil
}

// FactUpdate carries amendable fields. Nil means unchanged. StoreID is
// deliberately absent: the store scope is immutable.
type FactUpdate struct {
	EntryID    *domain.EntryID
	OccurredAt *time.Time
	EventType  *string
	Weight     *decimal.Decimal
	UnitCost   *decimal.Decimal
	UnitPrice  *decimal.Decimal
	Notes      *string
}

// Correction is an append-only annotation on a fact. It never changes the
// fact it references.
type Correction struct {
	ID        domain.CorrectionID `json:"id"`
	FactID    domain.FactID       `json:"fact_id"`
	AuthorID  domain.PrincipalID  `json:"author_id"`
	Reason    string              `json:"reason"`
	CreatedAt time.Time           `json:"created_at"`
}

const maxReasonLen = 500

func NewCorrection(id domain.CorrectionID, factID domain.FactID, author domain.PrincipalID, reason string, now time.Time) (*Correction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.Validation("reason", "must not be empty")
	}
	if len(reason) > maxReasonLen {
		return nil, dErrors.Validation("reason", "must be 500 characters or less")
	}
	return &Correction{
		ID:        id,
		FactID:    factID,
		AuthorID:  author,
		Reason:    reason,
		CreatedAt: now,
	}, nil
}

// Filter narrows fact listings. Dimension filters (category, cut, product
// type) resolve through the referenced catalog entry.
type Filter struct {
	StoreID      *int64
	DateFrom     *time.Time
	DateTo       *time.Time
	Categories   []string
	Cuts         []string
	ProductTypes []string
	EventTypes   []string
	Limit        int
}
