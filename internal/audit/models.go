package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"shrinktrack/pkg/domain"
)

// Action classifies the governed mutation an entry captures.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Entry is one immutable audit row; exactly one exists per successful
// governed mutation. ActorID is nil for system-originated mutations.
//
// Invariants on the snapshots:
//   - create: Before nil, After populated
//   - delete: Before populated, After nil
//   - update: both populated
type Entry struct {
	ID       uuid.UUID           `json:"id"`
	Entity   string              `json:"entity"`
	EntityID string              `json:"entity_id"`
	Action   Action              `json:"action"`
	ActorID  *domain.PrincipalID `json:"actor_id,omitempty"`
	At       time.Time           `json:"at"`
	Before   json.RawMessage     `json:"before,omitempty"`
	After    json.RawMessage     `json:"after,omitempty"`
}

// Filter narrows audit reads. Zero fields match everything.
type Filter struct {
	Entity  string
	Action  Action
	ActorID *domain.PrincipalID
	From    *time.Time
	To      *time.Time
	Limit   int
}
