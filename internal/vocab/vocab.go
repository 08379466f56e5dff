// Package vocab is the vocabulary registry: a runtime-checked value set per
// categorical namespace. Values are data, not a compiled type — new
// categories, event types, and roles are added administratively with no
// migration cost, which is the evolvability property the schema was designed
// around.
package vocab

import (
	"context"

	dErrors "shrinktrack/pkg/domain-errors"
)

// Namespaces in active use. The registry itself is open-ended; these
// constants just keep callers out of string-literal typos.
const (
	NamespaceRole        = "role"
	NamespaceCategory    = "category"
	NamespaceProductType = "product_type"
	NamespaceEventType   = "event_type"
)

// Registry validates categorical values by existence in the lookup table.
type Registry interface {
	// IsValid reports whether value is currently accepted in namespace.
	IsValid(ctx context.Context, namespace, value string) (bool, error)
	// Values lists the currently accepted values for a namespace.
	Values(ctx context.Context, namespace string) ([]string, error)
}

// Store extends Registry with the administrative mutations.
type Store interface {
	Registry
	// Add accepts a value in a namespace. Adding an existing value is a
	// no-op (idempotent seed path).
	Add(ctx context.Context, namespace, value string) error
	// Remove withdraws a value. Historical rows referencing it stay valid;
	// only new writes are rejected.
	Remove(ctx context.Context, namespace, value string) error
}

// ErrInvalidValue builds the rejection for a value absent from its namespace.
func ErrInvalidValue(namespace, value string) error {
	return dErrors.Newf(dErrors.CodeInvalidVocabulary, "%s: %q is not an accepted value", namespace, value)
}

// Require returns ErrInvalidValue unless value is accepted in namespace.
// Services call it before any persistence so a rejected write has zero
// observable effect.
func Require(ctx context.Context, r Registry, namespace, value string) error {
	ok, err := r.IsValid(ctx, namespace, value)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "vocabulary lookup failed")
	}
	if !ok {
		return ErrInvalidValue(namespace, value)
	}
	return nil
}
