package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shrinktrack/internal/audit"
	"shrinktrack/internal/catalog"
	"shrinktrack/internal/directory/models"
	"shrinktrack/internal/policy"
	"shrinktrack/internal/vocab"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/platform/tx"
	"shrinktrack/pkg/requestcontext"
)

type fixture struct {
	svc        *Service
	facts      *InMemory
	auditStore *audit.InMemoryStore
	entry      *catalog.Entry
	inactive   *catalog.Entry
	baseTime   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	registry := vocab.NewInMemory()
	require.NoError(t, vocab.Seed(ctx, registry))

	entries := catalog.NewInMemory()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	entry, err := catalog.NewEntry(domain.NewEntryID(), "Beef", "Ribeye", "Raw", nil, nil, now)
	require.NoError(t, err)
	require.NoError(t, entries.Create(ctx, entry))

	inactive, err := catalog.NewEntry(domain.NewEntryID(), "Pork", "Loin", "Raw", nil, nil, now)
	require.NoError(t, err)
	inactive.Active = false
	require.NoError(t, entries.Create(ctx, inactive))

	auditStore := audit.NewInMemoryStore()
	facts := NewInMemory(entries)
	svc := NewService(facts, entries, registry, audit.NewRecorder(auditStore, nil), tx.NewMemoryRunner(), nil)

	return &fixture{
		svc:        svc,
		facts:      facts,
		auditStore: auditStore,
		entry:      entry,
		inactive:   inactive,
		baseTime:   now,
	}
}

func (f *fixture) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), f.baseTime)
}

func (f *fixture) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func principalWith(role models.Role, storeID int64) models.Principal {
	return models.Principal{
		ID:      domain.NewPrincipalID(),
		Email:   "someone@example.com",
		Role:    role,
		StoreID: storeID,
		Active:  true,
	}
}

func (f *fixture) validInput(storeID int64) CreateFactInput {
	return CreateFactInput{
		EntryID:    f.entry.ID,
		StoreID:    storeID,
		OccurredAt: f.baseTime.Add(-time.Hour),
		EventType:  "Spoilage",
		Weight:     decimal.RequireFromString("2.500"),
		UnitCost:   decimal.RequireFromString("3.0000"),
		UnitPrice:  decimal.RequireFromString("5.9900"),
	}
}

func (f *fixture) auditEntries(t *testing.T) []audit.Entry {
	t.Helper()
	entries, err := f.auditStore.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	return entries
}

func TestCreateFactWritesExactlyOneAuditEntry(t *testing.T) {
	f := newFixture(t)
	actor := principalWith(models.RoleAssociate, 1)

	fact, err := f.svc.CreateFact(f.ctx(), actor, f.validInput(1))
	require.NoError(t, err)
	require.NotNil(t, fact)
	assert.Equal(t, actor.ID, fact.RecordedBy)
	assert.Equal(t, f.baseTime, fact.CreatedAt)

	entries := f.auditEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "ledger_fact", entries[0].Entity)
	assert.Equal(t, audit.ActionCreate, entries[0].Action)
	assert.Nil(t, entries[0].Before)
	assert.NotNil(t, entries[0].After)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, actor.ID, *entries[0].ActorID)
}

func TestCreateFactInvalidVocabularyLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	in := f.validInput(1)
	in.EventType = "Evaporation"

	_, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 1), in)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidVocabulary))

	facts, listErr := f.facts.ListFacts(context.Background(), Filter{})
	require.NoError(t, listErr)
	assert.Empty(t, facts)
	assert.Empty(t, f.auditEntries(t))
}

func TestCreateFactValidation(t *testing.T) {
	f := newFixture(t)
	actor := principalWith(models.RoleAssociate, 1)

	tests := []struct {
		name   string
		mutate func(*CreateFactInput)
	}{
		{"zero weight", func(in *CreateFactInput) { in.Weight = decimal.Zero }},
		{"negative weight", func(in *CreateFactInput) { in.Weight = decimal.RequireFromString("-1") }},
		{"weight over ceiling", func(in *CreateFactInput) { in.Weight = decimal.RequireFromString("500.001") }},
		{"weight too precise", func(in *CreateFactInput) { in.Weight = decimal.RequireFromString("1.2345") }},
		{"negative cost", func(in *CreateFactInput) { in.UnitCost = decimal.RequireFromString("-0.01") }},
		{"cost over ceiling", func(in *CreateFactInput) { in.UnitCost = decimal.RequireFromString("1000") }},
		{"price too precise", func(in *CreateFactInput) { in.UnitPrice = decimal.RequireFromString("1.00001") }},
		{"zero occurred_at", func(in *CreateFactInput) { in.OccurredAt = time.Time{} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := f.validInput(1)
			tc.mutate(&in)
			_, err := f.svc.CreateFact(f.ctx(), actor, in)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
	assert.Empty(t, f.auditEntries(t))
}

func TestCreateFactBoundaryValuesAccepted(t *testing.T) {
	f := newFixture(t)
	in := f.validInput(1)
	in.Weight = decimal.RequireFromString("500.000")
	in.UnitCost = decimal.RequireFromString("999.9999")
	in.UnitPrice = decimal.Zero

	_, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 1), in)
	require.NoError(t, err)
}

func TestCreateFactInactiveEntryRejected(t *testing.T) {
	f := newFixture(t)
	in := f.validInput(1)
	in.EntryID = f.inactive.ID

	_, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 1), in)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestCreateFactStoreMismatchDenied(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 1), f.validInput(2))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Empty(t, f.auditEntries(t))
}

func TestUpdateFactWindowBoundary(t *testing.T) {
	f := newFixture(t)
	fact, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 1), f.validInput(1))
	require.NoError(t, err)

	lead := principalWith(models.RoleLead, 1)
	weight := decimal.RequireFromString("3.000")

	// Six days in: still open.
	_, err = f.svc.UpdateFact(f.ctxAt(f.baseTime.Add(6*24*time.Hour)), lead, fact.ID, FactUpdate{Weight: &weight})
	require.NoError(t, err)

	// Exactly at the boundary: still open.
	_, err = f.svc.UpdateFact(f.ctxAt(f.baseTime.Add(policy.EditWindow)), lead, fact.ID, FactUpdate{Weight: &weight})
	require.NoError(t, err)

	// One second past: closed forever.
	_, err = f.svc.UpdateFact(f.ctxAt(f.baseTime.Add(policy.EditWindow+time.Second)), lead, fact.ID, FactUpdate{Weight: &weight})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Contains(t, err.Error(), "edit window")
}

func TestUpdateFactRoleRules(t *testing.T) {
	f := newFixture(t)
	fact, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 1), f.validInput(1))
	require.NoError(t, err)

	weight := decimal.RequireFromString("4.000")

	_, err = f.svc.UpdateFact(f.ctx(), principalWith(models.RoleAssociate, 1), fact.ID, FactUpdate{Weight: &weight})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = f.svc.UpdateFact(f.ctx(), principalWith(models.RoleLead, 2), fact.ID, FactUpdate{Weight: &weight})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	updated, err := f.svc.UpdateFact(f.ctx(), principalWith(models.RoleLead, 1), fact.ID, FactUpdate{Weight: &weight})
	require.NoError(t, err)
	assert.True(t, updated.Weight.Equal(weight))

	// Create + one successful update.
	entries := f.auditEntries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionUpdate, entries[0].Action)
	assert.NotNil(t, entries[0].Before)
	assert.NotNil(t, entries[0].After)
}

func TestDeleteFactRoleRules(t *testing.T) {
	f := newFixture(t)
	fact, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 1), f.validInput(1))
	require.NoError(t, err)

	err = f.svc.DeleteFact(f.ctx(), principalWith(models.RoleAssociate, 1), fact.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	err = f.svc.DeleteFact(f.ctx(), principalWith(models.RoleLead, 1), fact.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	require.NoError(t, f.svc.DeleteFact(f.ctx(), principalWith(models.RoleManager, 1), fact.ID))

	_, err = f.facts.FindFact(context.Background(), fact.ID)
	require.Error(t, err)

	entries := f.auditEntries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionDelete, entries[0].Action)
	assert.NotNil(t, entries[0].Before)
	assert.Nil(t, entries[0].After)
}

func TestAuditFailureRollsBackMutation(t *testing.T) {
	f := newFixture(t)
	f.auditStore.FailNextAppend(errors.New("disk full"))

	_, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 1), f.validInput(1))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuditFailure))

	facts, listErr := f.facts.ListFacts(context.Background(), Filter{})
	require.NoError(t, listErr)
	assert.Empty(t, facts, "fact must roll back with the audit entry")
	assert.Empty(t, f.auditEntries(t))
}

func TestCorrectionLeavesFactUntouched(t *testing.T) {
	f := newFixture(t)
	fact, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 1), f.validInput(1))
	require.NoError(t, err)

	before, err := f.facts.FindFact(context.Background(), fact.ID)
	require.NoError(t, err)
	beforeJSON, err := json.Marshal(before)
	require.NoError(t, err)

	lead := principalWith(models.RoleLead, 1)
	corr, err := f.svc.CreateCorrection(f.ctx(), lead, fact.ID, "mislabeled as spoilage, was trim waste")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, corr.AuthorID)

	_, err = f.svc.CreateCorrection(f.ctx(), lead, fact.ID, "second annotation")
	require.NoError(t, err)

	after, err := f.facts.FindFact(context.Background(), fact.ID)
	require.NoError(t, err)
	afterJSON, err := json.Marshal(after)
	require.NoError(t, err)
	assert.Equal(t, beforeJSON, afterJSON, "a correction must never alter its fact")

	corrections, err := f.svc.ListCorrections(f.ctx(), lead, fact.ID)
	require.NoError(t, err)
	require.Len(t, corrections, 2)
}

func TestCorrectionRequiresExistingFact(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateCorrection(f.ctx(), principalWith(models.RoleLead, 1), domain.NewFactID(), "orphan")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestCorrectionDeniedForAssociate(t *testing.T) {
	f := newFixture(t)
	fact, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 1), f.validInput(1))
	require.NoError(t, err)

	_, err = f.svc.CreateCorrection(f.ctx(), principalWith(models.RoleAssociate, 1), fact.ID, "reason")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestListFactsStoreIsolation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 1), f.validInput(1))
	require.NoError(t, err)
	_, err = f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 2), f.validInput(2))
	require.NoError(t, err)

	// A store-2 associate asking for store 1 still only sees store 2.
	storeOne := int64(1)
	facts, err := f.svc.ListFacts(f.ctx(), principalWith(models.RoleAssociate, 2), Filter{StoreID: &storeOne})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, int64(2), facts[0].StoreID)

	// Auditors see everything.
	all, err := f.svc.ListFacts(f.ctx(), principalWith(models.RoleAuditor, 99), Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListFactsDimensionFilters(t *testing.T) {
	f := newFixture(t)
	actor := principalWith(models.RoleAssociate, 1)
	_, err := f.svc.CreateFact(f.ctx(), actor, f.validInput(1))
	require.NoError(t, err)

	in := f.validInput(1)
	in.EventType = "Theft"
	_, err = f.svc.CreateFact(f.ctx(), actor, in)
	require.NoError(t, err)

	facts, err := f.svc.ListFacts(f.ctx(), actor, Filter{EventTypes: []string{"Theft"}})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "Theft", facts[0].EventType)

	facts, err = f.svc.ListFacts(f.ctx(), actor, Filter{Categories: []string{"Beef"}})
	require.NoError(t, err)
	assert.Len(t, facts, 2)

	facts, err = f.svc.ListFacts(f.ctx(), actor, Filter{Categories: []string{"Seafood"}})
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestRecentFactsNewestFirstAndPinned(t *testing.T) {
	f := newFixture(t)
	actor := principalWith(models.RoleAssociate, 1)

	for i := 0; i < 3; i++ {
		ctx := requestcontext.WithTime(context.Background(), f.baseTime.Add(time.Duration(i)*time.Minute))
		_, err := f.svc.CreateFact(ctx, actor, f.validInput(1))
		require.NoError(t, err)
	}
	_, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 2), f.validInput(2))
	require.NoError(t, err)

	// storeID in the request is ignored for store-scoped roles.
	facts, err := f.svc.RecentFacts(f.ctx(), actor, 2, 2)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	for _, fact := range facts {
		assert.Equal(t, int64(1), fact.StoreID)
	}
	assert.True(t, !facts[0].CreatedAt.Before(facts[1].CreatedAt))
}

func TestUpdateFactInvalidVocabularyRollsBack(t *testing.T) {
	f := newFixture(t)
	fact, err := f.svc.CreateFact(f.ctx(), principalWith(models.RoleAssociate, 1), f.validInput(1))
	require.NoError(t, err)

	bogus := "Teleportation"
	_, err = f.svc.UpdateFact(f.ctx(), principalWith(models.RoleLead, 1), fact.ID, FactUpdate{EventType: &bogus})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidVocabulary))

	current, err := f.facts.FindFact(context.Background(), fact.ID)
	require.NoError(t, err)
	assert.Equal(t, "Spoilage", current.EventType)
	assert.Len(t, f.auditEntries(t), 1)
}
