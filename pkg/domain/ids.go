// Package domain defines typed identifiers shared across packages. Typed IDs
// prevent a fact ID from being passed where a catalog entry ID is expected.
package domain

import "github.com/google/uuid"

type (
	// PrincipalID identifies an authenticated actor in the tenant directory.
	PrincipalID uuid.UUID

	// EntryID identifies a catalog entry (product).
	EntryID uuid.UUID

	// FactID identifies an immutable ledger fact (shrink event).
	FactID uuid.UUID

	// CorrectionID identifies an append-only correction.
	CorrectionID uuid.UUID
)

func NewPrincipalID() PrincipalID   { return PrincipalID(uuid.New()) }
func NewEntryID() EntryID           { return EntryID(uuid.New()) }
func NewFactID() FactID             { return FactID(uuid.New()) }
func NewCorrectionID() CorrectionID { return CorrectionID(uuid.New()) }

func (id PrincipalID) String() string  { return uuid.UUID(id).String() }
func (id EntryID) String() string      { return uuid.UUID(id).String() }
func (id FactID) String() string       { return uuid.UUID(id).String() }
func (id CorrectionID) String() string { return uuid.UUID(id).String() }

func (id PrincipalID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id FactID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id CorrectionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func ParsePrincipalID(s string) (PrincipalID, error) {
	u, err := uuid.Parse(s)
	return PrincipalID(u), err
}

func ParseEntryID(s string) (EntryID, error) {
	u, err := uuid.Parse(s)
	return EntryID(u), err
}

func ParseFactID(s string) (FactID, error) {
	u, err := uuid.Parse(s)
	return FactID(u), err
}
