package catalog

import (
	"strings"
	"time"

	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
)

// Entry is a product in the catalog.
//
// Invariants:
//   - (Category, CutName, ProductType) is unique across the catalog
//   - Category and ProductType exist in the vocabulary registry
//   - Entries referenced by ledger facts are deactivated, never removed
type Entry struct {
	ID          domain.EntryID `json:"id"`
	SKU         *string        `json:"upc_sku,omitempty"`
	Category    string         `json:"category"`
	CutName     string         `json:"cut_name"`
	ProductType string         `json:"product_type"`
	GradeSpec   *string        `json:"grade_spec,omitempty"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

const (
	maxCutNameLen   = 100
	maxSKULen       = 50
	maxGradeSpecLen = 100
)

func NewEntry(id domain.EntryID, category, cutName, productType string, sku, gradeSpec *string, now time.Time) (*Entry, error) {
	cutName = strings.TrimSpace(cutName)
	if cutName == "" {
		return nil, dErrors.Validation("cut_name", "must not be empty")
	}
	if len(cutName) > maxCutNameLen {
		return nil, dErrors.Validation("cut_name", "must be 100 characters or less")
	}
	if sku != nil && len(*sku) > maxSKULen {
		return nil, dErrors.Validation("upc_sku", "must be 50 characters or less")
	}
	if gradeSpec != nil && len(*gradeSpec) > maxGradeSpecLen {
		return nil, dErrors.Validation("grade_spec", "must be 100 characters or less")
	}
	return &Entry{
		ID:          id,
		SKU:         sku,
		Category:    category,
		CutName:     cutName,
		ProductType: productType,
		GradeSpec:   gradeSpec,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Key is the natural uniqueness triple.
type Key struct {
	Category    string
	CutName     string
	ProductType string
}

func (e *Entry) Key() Key {
	return Key{Category: e.Category, CutName: e.CutName, ProductType: e.ProductType}
}

// EntryUpdate carries the mutable fields of an entry. Nil means unchanged.
type EntryUpdate struct {
	SKU       *string
	GradeSpec *string
	Active    *bool
}

// ImportRow is one line of a bulk catalog import.
type ImportRow struct {
	Category    string  `json:"category"`
	CutName     string  `json:"cut_name"`
	ProductType string  `json:"product_type"`
	GradeSpec   *string `json:"grade_spec,omitempty"`
}

// ImportResult accounts for a bulk import run.
type ImportResult struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}
