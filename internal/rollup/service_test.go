package rollup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shrinktrack/internal/catalog"
	"shrinktrack/internal/directory/models"
	"shrinktrack/internal/ledger"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
)

var day = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func seedFacts(t *testing.T) (*ledger.InMemory, *catalog.InMemory) {
	t.Helper()
	ctx := context.Background()

	entries := catalog.NewInMemory()
	beef, err := catalog.NewEntry(domain.NewEntryID(), "Beef", "Ribeye", "Raw", nil, nil, day)
	require.NoError(t, err)
	require.NoError(t, entries.Create(ctx, beef))
	pork, err := catalog.NewEntry(domain.NewEntryID(), "Pork", "Loin", "Raw", nil, nil, day)
	require.NoError(t, err)
	require.NoError(t, entries.Create(ctx, pork))

	facts := ledger.NewInMemory(entries)
	seed := []struct {
		entry  domain.EntryID
		weight string
		cost   string
	}{
		{beef.ID, "2.5", "3.00"},
		{beef.ID, "10.0", "1.50"},
		{pork.ID, "1.0", "9.00"},
	}
	for _, s := range seed {
		fact, err := ledger.NewFact(domain.NewFactID(), s.entry, 1, domain.NewPrincipalID(),
			day.Add(10*time.Hour), "Spoilage",
			decimal.RequireFromString(s.weight),
			decimal.RequireFromString(s.cost),
			decimal.Zero, nil, day.Add(10*time.Hour))
		require.NoError(t, err)
		require.NoError(t, facts.CreateFact(ctx, fact))
	}
	return facts, entries
}

func admin() models.Principal {
	return models.Principal{ID: domain.NewPrincipalID(), Role: models.RoleAdmin, StoreID: 1, Active: true}
}

func TestRefreshDailyTotal(t *testing.T) {
	facts, entries := seedFacts(t)
	svc := NewService(facts, entries, nil, nil)

	scope := int64(1)
	result, err := svc.Refresh(context.Background(), admin(), &scope)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StoreDays)
	assert.Equal(t, 2, result.CategoryRows)

	snap, err := svc.Query(context.Background(), admin(), 1, nil, nil)
	require.NoError(t, err)
	require.Len(t, snap.Daily, 1)

	// 2.5*3.00 + 10*1.50 + 1*9.00 = 31.5
	assert.True(t, snap.Daily[0].TotalCost.Equal(decimal.RequireFromString("31.5")),
		"got %s", snap.Daily[0].TotalCost)
	assert.True(t, snap.Daily[0].TotalWeight.Equal(decimal.RequireFromString("13.5")))
	assert.Equal(t, day, snap.Daily[0].Day)

	require.Len(t, snap.ByCategory, 2)
	assert.Equal(t, "Beef", snap.ByCategory[0].Category)
	assert.True(t, snap.ByCategory[0].TotalCost.Equal(decimal.RequireFromString("22.5")))
	assert.Equal(t, "Pork", snap.ByCategory[1].Category)
	assert.True(t, snap.ByCategory[1].TotalCost.Equal(decimal.RequireFromString("9")))
}

func TestRefreshIsIdempotent(t *testing.T) {
	facts, entries := seedFacts(t)
	svc := NewService(facts, entries, nil, nil)

	scope := int64(1)
	_, err := svc.Refresh(context.Background(), admin(), &scope)
	require.NoError(t, err)
	first, err := svc.Query(context.Background(), admin(), 1, nil, nil)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), admin(), &scope)
	require.NoError(t, err)
	second, err := svc.Query(context.Background(), admin(), 1, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Daily, second.Daily)
	assert.Equal(t, first.ByCategory, second.ByCategory)
}

func TestRefreshRequiresAdmin(t *testing.T) {
	facts, entries := seedFacts(t)
	svc := NewService(facts, entries, nil, nil)

	for _, role := range []models.Role{models.RoleAssociate, models.RoleLead, models.RoleManager, models.RoleAuditor} {
		p := models.Principal{ID: domain.NewPrincipalID(), Role: role, StoreID: 1, Active: true}
		_, err := svc.Refresh(context.Background(), p, nil)
		require.Error(t, err, "role %s must not refresh", role)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	}

	// The scheduled path runs the same scan without the gate.
	_, err := svc.RefreshAsSystem(context.Background(), nil)
	require.NoError(t, err)
}

func TestQueryPinsStoreScopedRoles(t *testing.T) {
	facts, entries := seedFacts(t)
	svc := NewService(facts, entries, nil, nil)

	_, err := svc.RefreshAsSystem(context.Background(), nil)
	require.NoError(t, err)

	manager := models.Principal{ID: domain.NewPrincipalID(), Role: models.RoleManager, StoreID: 2, Active: true}
	snap, err := svc.Query(context.Background(), manager, 1, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.StoreID)
	assert.Empty(t, snap.Daily, "store 2 has no facts")
}

// blockingSource gates ListFacts so a second refresh can be issued while the
// first scan is still in flight.
type blockingSource struct {
	inner   FactSource
	scans   atomic.Int64
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingSource) ListFacts(ctx context.Context, f ledger.Filter) ([]ledger.Fact, error) {
	b.scans.Add(1)
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.inner.ListFacts(ctx, f)
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	facts, entries := seedFacts(t)
	src := &blockingSource{
		inner:   facts,
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	svc := NewService(src, entries, nil, nil)

	scope := int64(1)
	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.RefreshAsSystem(context.Background(), &scope)
		}()
	}

	<-src.started
	// Give the remaining callers time to join the in-flight refresh before
	// the scan is allowed to finish.
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), src.scans.Load(), "concurrent refreshes of one scope must share a single scan")
}

func TestReadersNeverSeePartialGeneration(t *testing.T) {
	facts, entries := seedFacts(t)
	svc := NewService(facts, entries, nil, nil)

	_, err := svc.RefreshAsSystem(context.Background(), nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			scope := int64(1)
			_, _ = svc.RefreshAsSystem(context.Background(), &scope)
		}
	}()

	// Concurrent readers must always observe the full three-fact total,
	// never a generation mid-build.
	for i := 0; i < 200; i++ {
		snap, err := svc.Query(context.Background(), admin(), 1, nil, nil)
		require.NoError(t, err)
		require.Len(t, snap.Daily, 1)
		require.True(t, snap.Daily[0].TotalCost.Equal(decimal.RequireFromString("31.5")))
	}
	<-done
}
