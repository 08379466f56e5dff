package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shrinktrack/internal/audit"
	"shrinktrack/internal/directory/models"
	"shrinktrack/internal/vocab"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/platform/tx"
	"shrinktrack/pkg/requestcontext"
)

func newService(t *testing.T) (*Service, *audit.InMemoryStore) {
	t.Helper()
	registry := vocab.NewInMemory()
	require.NoError(t, vocab.Seed(context.Background(), registry))

	auditStore := audit.NewInMemoryStore()
	return NewService(NewInMemory(), registry, audit.NewRecorder(auditStore, nil), tx.NewMemoryRunner()), auditStore
}

func testCtx() context.Context {
	return requestcontext.WithTime(context.Background(), time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
}

func manager() models.Principal {
	return models.Principal{ID: domain.NewPrincipalID(), Role: models.RoleManager, StoreID: 1, Active: true}
}

func TestCreateEntry(t *testing.T) {
	svc, auditStore := newService(t)

	entry, err := svc.Create(testCtx(), manager(), "Beef", "Ribeye", "Raw", nil, nil)
	require.NoError(t, err)
	assert.True(t, entry.Active)
	assert.Equal(t, "Beef", entry.Category)

	entries, err := auditStore.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "catalog_entry", entries[0].Entity)
	assert.Equal(t, audit.ActionCreate, entries[0].Action)
}

func TestCreateEntryDeniedForAssociate(t *testing.T) {
	svc, _ := newService(t)
	associate := models.Principal{ID: domain.NewPrincipalID(), Role: models.RoleAssociate, StoreID: 1, Active: true}

	_, err := svc.Create(testCtx(), associate, "Beef", "Ribeye", "Raw", nil, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestCreateEntryUnknownCategory(t *testing.T) {
	svc, auditStore := newService(t)

	_, err := svc.Create(testCtx(), manager(), "Venison", "Backstrap", "Raw", nil, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidVocabulary))

	entries, err := auditStore.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateEntryDuplicateTriple(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Create(testCtx(), manager(), "Beef", "Ribeye", "Raw", nil, nil)
	require.NoError(t, err)

	_, err = svc.Create(testCtx(), manager(), "Beef", "Ribeye", "Raw", nil, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	// Same cut under a different product type is a distinct entry.
	_, err = svc.Create(testCtx(), manager(), "Beef", "Ribeye", "Marinated", nil, nil)
	require.NoError(t, err)
}

func TestUpdateAndDeactivate(t *testing.T) {
	svc, auditStore := newService(t)

	entry, err := svc.Create(testCtx(), manager(), "Beef", "Ribeye", "Raw", nil, nil)
	require.NoError(t, err)

	sku := "123456789012"
	updated, err := svc.Update(testCtx(), manager(), entry.ID, EntryUpdate{SKU: &sku})
	require.NoError(t, err)
	require.NotNil(t, updated.SKU)
	assert.Equal(t, sku, *updated.SKU)

	deactivated, err := svc.Deactivate(testCtx(), manager(), entry.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	entries, err := auditStore.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestUpdateMissingEntry(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Update(testCtx(), manager(), domain.NewEntryID(), EntryUpdate{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestBulkImport(t *testing.T) {
	svc, _ := newService(t)
	grade := "Choice"

	result, err := svc.BulkImport(testCtx(), manager(), []ImportRow{
		{Category: "Beef", CutName: "Ribeye", ProductType: "Raw", GradeSpec: &grade},
		{Category: "Pork", CutName: "Loin", ProductType: "Raw"},
		{Category: "Unknown", CutName: "Mystery", ProductType: "Raw"},
		{Category: "Beef", CutName: "", ProductType: "Raw"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "row 3")
	assert.Contains(t, result.Errors[1], "row 4")

	// Re-importing an existing triple upserts instead of failing.
	again, err := svc.BulkImport(testCtx(), manager(), []ImportRow{
		{Category: "Beef", CutName: "Ribeye", ProductType: "Raw"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, again.Imported)
	assert.Equal(t, 0, again.Failed)

	entries, err := svc.List(testCtx(), manager())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
