package models

import (
	"strings"
	"time"

	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
)

// Role is an open-ended vocabulary value, not a closed enum: new roles are
// added to the vocabulary registry at runtime without a code change. The
// constants below exist only so the policy engine and tests can reference the
// seeded roles without string literals.
type Role string

const (
	RoleAssociate Role = "associate"
	RoleLead      Role = "lead"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
	RoleAuditor   Role = "auditor"
)

// Principal is an authenticated actor with a role and store scope.
//
// Invariants:
//   - Email is non-empty and at most 254 characters
//   - Role is validated against vocabulary("role") at the service layer
//   - StoreID is positive
//   - Principals are never hard-deleted; Active flips to false instead
//   - CreatedAt is immutable after construction
type Principal struct {
	ID        domain.PrincipalID `json:"id"`
	Email     string             `json:"email"`
	Role      Role               `json:"role"`
	StoreID   int64              `json:"store_id"`
	Active    bool               `json:"active"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func NewPrincipal(id domain.PrincipalID, email string, role Role, storeID int64, now time.Time) (*Principal, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, dErrors.Validation("email", "must not be empty")
	}
	if len(email) > 254 {
		return nil, dErrors.Validation("email", "must be 254 characters or less")
	}
	if storeID <= 0 {
		return nil, dErrors.Validation("store_id", "must be positive")
	}
	return &Principal{
		ID:        id,
		Email:     email,
		Role:      role,
		StoreID:   storeID,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (p *Principal) CanDeactivate() error {
	if !p.Active {
		return dErrors.New(dErrors.CodeConflict, "principal is already inactive")
	}
	return nil
}

func (p *Principal) ApplyDeactivation(now time.Time) {
	p.Active = false
	p.UpdatedAt = now
}

func (p *Principal) CanReactivate() error {
	if p.Active {
		return dErrors.New(dErrors.CodeConflict, "principal is already active")
	}
	return nil
}

func (p *Principal) ApplyReactivation(now time.Time) {
	p.Active = true
	p.UpdatedAt = now
}

func (p *Principal) ApplyRole(role Role, now time.Time) {
	p.Role = role
	p.UpdatedAt = now
}

func (p *Principal) ApplyStore(storeID int64, now time.Time) {
	p.StoreID = storeID
	p.UpdatedAt = now
}
