// Package policy is the central authorization contract. Authorize is a pure
// function over (principal, operation, target, now): every data-access path in
// the system calls it before touching governed data, and no component is
// allowed to bypass it. Keeping it pure makes the whole access model testable
// in isolation and independent of storage.
package policy

import (
	"time"

	"shrinktrack/internal/directory/models"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
)

// EditWindow is the period after creation during which a ledger fact may
// still be amended by lead+ roles. After it closes the fact is permanently
// immutable; corrections are the only sanctioned amendment path.
const EditWindow = 7 * 24 * time.Hour

// Entity tags the kind of governed data an operation touches.
type Entity string

const (
	EntityPrincipal    Entity = "principal"
	EntityCatalogEntry Entity = "catalog_entry"
	EntityLedgerFact   Entity = "ledger_fact"
	EntityCorrection   Entity = "correction"
	EntityAuditEntry   Entity = "audit_entry"
	EntityVocabulary   Entity = "vocabulary"
)

// Verb is the operation class.
type Verb string

const (
	VerbRead   Verb = "read"
	VerbCreate Verb = "create"
	VerbUpdate Verb = "update"
	VerbDelete Verb = "delete"
)

// Operation pairs an entity with a verb.
type Operation struct {
	Entity Entity
	Verb   Verb
}

// Target carries the facts about the object being acted on that the decision
// table needs. Zero values mean "not applicable" for the given operation.
type Target struct {
	// StoreID is the store scope of the target row. The zero value means
	// "all stores" for reads (only auditor/admin may hold that scope).
	StoreID int64
	// PrincipalID is set for principal reads so self-access can be granted.
	PrincipalID domain.PrincipalID
	// FactCreatedAt drives the edit-window check on ledger fact updates.
	FactCreatedAt time.Time
	// StoreChange is set when an update attempts to move the target to a
	// different store scope. The store field is immutable once set.
	StoreChange bool
}

// DenyReason names why an operation was refused. Denials always carry one.
type DenyReason string

const (
	ReasonRoleInsufficient  DenyReason = "role insufficient"
	ReasonStoreMismatch     DenyReason = "store mismatch"
	ReasonEditWindowExpired DenyReason = "edit window expired"
	ReasonStoreImmutable    DenyReason = "store scope is immutable"
	ReasonPrincipalInactive DenyReason = "principal is inactive"
	ReasonUnknownOperation  DenyReason = "unknown operation"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision            { return Decision{Allowed: true} }
func deny(r DenyReason) Decision { return Decision{Reason: r} }

// Err converts a decision into a domain error, nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return dErrors.Newf(dErrors.CodeForbidden, "policy denied: %s", d.Reason)
}

// System returns the elevated internal principal used by scheduled jobs (the
// rollup refresh path). It is admin-equivalent for data scans but has no
// identity, so audit rows it would produce are system-originated.
func System() models.Principal {
	return models.Principal{Role: models.RoleAdmin, Active: true}
}

// roleIn reports membership of the principal's role in the given set.
func roleIn(p models.Principal, roles ...models.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Authorize evaluates the decision table. It is total: every triple yields a
// deterministic Allow or Deny, and evaluation reads nothing but its inputs.
// now is the evaluation time used for the edit-window rule; callers pass the
// request-scoped time so the window check and the write agree on "now".
func Authorize(p models.Principal, op Operation, t Target, now time.Time) Decision {
	if !p.Active {
		return deny(ReasonPrincipalInactive)
	}

	switch op.Entity {
	case EntityPrincipal:
		switch op.Verb {
		case VerbRead:
			if p.ID == t.PrincipalID && !p.ID.IsNil() {
				return allow()
			}
			if p.StoreID != t.StoreID {
				return deny(ReasonStoreMismatch)
			}
			if roleIn(p, models.RoleManager, models.RoleAdmin, models.RoleAuditor) {
				return allow()
			}
			return deny(ReasonRoleInsufficient)
		case VerbCreate, VerbUpdate, VerbDelete:
			if p.Role == models.RoleAdmin {
				return allow()
			}
			return deny(ReasonRoleInsufficient)
		}

	case EntityCatalogEntry:
		switch op.Verb {
		case VerbRead:
			return allow()
		case VerbCreate, VerbUpdate, VerbDelete:
			if roleIn(p, models.RoleManager, models.RoleAdmin) {
				return allow()
			}
			return deny(ReasonRoleInsufficient)
		}

	case EntityLedgerFact:
		switch op.Verb {
		case VerbRead:
			if roleIn(p, models.RoleAuditor, models.RoleAdmin) {
				return allow()
			}
			if p.StoreID == t.StoreID {
				return allow()
			}
			return deny(ReasonStoreMismatch)
		case VerbCreate:
			if !roleIn(p, models.RoleAssociate, models.RoleLead, models.RoleManager, models.RoleAdmin) {
				return deny(ReasonRoleInsufficient)
			}
			if p.StoreID != t.StoreID {
				return deny(ReasonStoreMismatch)
			}
			return allow()
		case VerbUpdate:
			if !roleIn(p, models.RoleLead, models.RoleManager, models.RoleAdmin) {
				return deny(ReasonRoleInsufficient)
			}
			if p.StoreID != t.StoreID {
				return deny(ReasonStoreMismatch)
			}
			if t.StoreChange {
				return deny(ReasonStoreImmutable)
			}
			if now.Sub(t.FactCreatedAt) > EditWindow {
				return deny(ReasonEditWindowExpired)
			}
			return allow()
		case VerbDelete:
			if !roleIn(p, models.RoleManager, models.RoleAdmin) {
				return deny(ReasonRoleInsufficient)
			}
			if p.StoreID != t.StoreID {
				return deny(ReasonStoreMismatch)
			}
			return allow()
		}

	case EntityCorrection:
		switch op.Verb {
		case VerbRead:
			// Read scope follows the referenced fact's store.
			if roleIn(p, models.RoleAuditor, models.RoleAdmin) {
				return allow()
			}
			if p.StoreID == t.StoreID {
				return allow()
			}
			return deny(ReasonStoreMismatch)
		case VerbCreate:
			if roleIn(p, models.RoleLead, models.RoleManager, models.RoleAdmin) {
				return allow()
			}
			return deny(ReasonRoleInsufficient)
		}

	case EntityVocabulary:
		switch op.Verb {
		case VerbRead:
			return allow()
		case VerbCreate, VerbUpdate, VerbDelete:
			if p.Role == models.RoleAdmin {
				return allow()
			}
			return deny(ReasonRoleInsufficient)
		}

	case EntityAuditEntry:
		// Audit rows are read-equivalent of the data they govern; only the
		// roles that can read everything may read them.
		if op.Verb == VerbRead {
			if roleIn(p, models.RoleAuditor, models.RoleAdmin) {
				return allow()
			}
			return deny(ReasonRoleInsufficient)
		}
	}

	return deny(ReasonUnknownOperation)
}
