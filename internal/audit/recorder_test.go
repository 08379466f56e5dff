package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/requestcontext"
)

type snapshot struct {
	Weight string `json:"weight"`
}

func TestRecordEnforcesSnapshotShape(t *testing.T) {
	store := NewInMemoryStore()
	rec := NewRecorder(store, nil)
	actor := domain.NewPrincipalID()
	ctx := context.Background()

	t.Run("create requires after only", func(t *testing.T) {
		err := rec.Record(ctx, "ledger_fact", "f1", ActionCreate, &actor, nil, snapshot{Weight: "2.5"})
		require.NoError(t, err)

		err = rec.Record(ctx, "ledger_fact", "f1", ActionCreate, &actor, snapshot{}, snapshot{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAuditFailure))
	})

	t.Run("update requires both snapshots", func(t *testing.T) {
		err := rec.Record(ctx, "ledger_fact", "f1", ActionUpdate, &actor, snapshot{Weight: "2.5"}, snapshot{Weight: "3.0"})
		require.NoError(t, err)

		err = rec.Record(ctx, "ledger_fact", "f1", ActionUpdate, &actor, nil, snapshot{})
		require.Error(t, err)
	})

	t.Run("delete requires before only", func(t *testing.T) {
		err := rec.Record(ctx, "ledger_fact", "f1", ActionDelete, &actor, snapshot{Weight: "3.0"}, nil)
		require.NoError(t, err)

		err = rec.Record(ctx, "ledger_fact", "f1", ActionDelete, &actor, snapshot{}, snapshot{})
		require.Error(t, err)
	})
}

func TestRecordStampsRequestTime(t *testing.T) {
	store := NewInMemoryStore()
	rec := NewRecorder(store, nil)
	actor := domain.NewPrincipalID()

	fixed := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), fixed)

	require.NoError(t, rec.Record(ctx, "principal", "p1", ActionCreate, &actor, nil, snapshot{}))

	entries, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fixed, entries[0].At)
}

func TestRecordStoreFailureIsAuditFailure(t *testing.T) {
	store := NewInMemoryStore()
	store.FailNextAppend(errors.New("disk full"))
	rec := NewRecorder(store, nil)

	err := rec.Record(context.Background(), "principal", "p1", ActionCreate, nil, nil, snapshot{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuditFailure))

	entries, listErr := store.List(context.Background(), Filter{})
	require.NoError(t, listErr)
	assert.Empty(t, entries, "failed append must leave no entry")
}

func TestListFiltering(t *testing.T) {
	store := NewInMemoryStore()
	rec := NewRecorder(store, nil)
	actorA := domain.NewPrincipalID()
	actorB := domain.NewPrincipalID()
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, "ledger_fact", "f1", ActionCreate, &actorA, nil, snapshot{}))
	require.NoError(t, rec.Record(ctx, "ledger_fact", "f1", ActionUpdate, &actorB, snapshot{}, snapshot{}))
	require.NoError(t, rec.Record(ctx, "catalog_entry", "c1", ActionCreate, &actorA, nil, snapshot{}))

	byEntity, err := store.List(ctx, Filter{Entity: "ledger_fact"})
	require.NoError(t, err)
	assert.Len(t, byEntity, 2)

	byAction, err := store.List(ctx, Filter{Action: ActionUpdate})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, "f1", byAction[0].EntityID)

	byActor, err := store.List(ctx, Filter{ActorID: &actorA})
	require.NoError(t, err)
	assert.Len(t, byActor, 2)

	limited, err := store.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "catalog_entry", limited[0].Entity, "newest first")
}
