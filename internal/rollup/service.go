package rollup

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"shrinktrack/internal/catalog"
	"shrinktrack/internal/directory/models"
	"shrinktrack/internal/ledger"
	"shrinktrack/internal/platform/metrics"
	"shrinktrack/internal/policy"
	"shrinktrack/pkg/domain"
	dErrors "shrinktrack/pkg/domain-errors"
	"shrinktrack/pkg/requestcontext"
)

// FactSource is the slice of the ledger the aggregation layer scans.
type FactSource interface {
	ListFacts(ctx context.Context, f ledger.Filter) ([]ledger.Fact, error)
}

// CatalogLookup resolves the category dimension of a fact.
type CatalogLookup interface {
	FindByID(ctx context.Context, id domain.EntryID) (*catalog.Entry, error)
}

// Publisher optionally persists a refreshed generation (the SQL rollup
// tables). The in-memory snapshot remains the read path either way.
type Publisher interface {
	Publish(ctx context.Context, scope int64, daily []StoreDaily, byCategory []StoreDailyCategory) error
}

// Service computes and serves rollups. Refresh runs against a point-in-time
// scan of the ledger, then publishes the result by swapping the scope's
// snapshot under a short write lock; concurrent refreshes of the same scope
// coalesce through singleflight.
type Service struct {
	facts     FactSource
	entries   CatalogLookup
	publisher Publisher
	metrics   *metrics.Metrics

	group singleflight.Group

	mu        sync.RWMutex
	snapshots map[int64]*Snapshot
}

func NewService(facts FactSource, entries CatalogLookup, publisher Publisher, m *metrics.Metrics) *Service {
	return &Service{
		facts:     facts,
		entries:   entries,
		publisher: publisher,
		metrics:   m,
		snapshots: make(map[int64]*Snapshot),
	}
}

// Refresh recomputes rollups on demand. Admin-equivalent principals only;
// scope nil means every store with at least one fact.
func (s *Service) Refresh(ctx context.Context, actor models.Principal, scope *int64) (*RefreshResult, error) {
	reason := policy.DenyReason("")
	switch {
	case !actor.Active:
		reason = policy.ReasonPrincipalInactive
	case actor.Role != models.RoleAdmin:
		reason = policy.ReasonRoleInsufficient
	}
	if reason != "" {
		s.metrics.IncrementPolicyDenials(string(reason))
		return nil, policy.Decision{Reason: reason}.Err()
	}
	return s.refresh(ctx, scope)
}

// RefreshAsSystem is the scheduled path. It bypasses the interactive
// authorization gate but runs the exact same scan logic.
func (s *Service) RefreshAsSystem(ctx context.Context, scope *int64) (*RefreshResult, error) {
	return s.refresh(ctx, scope)
}

func (s *Service) refresh(ctx context.Context, scope *int64) (*RefreshResult, error) {
	if scope != nil {
		snap, err := s.refreshScope(ctx, *scope)
		if err != nil {
			return nil, err
		}
		return result(scope, []*Snapshot{snap}), nil
	}

	scopes, err := s.activeScopes(ctx)
	if err != nil {
		return nil, err
	}

	snaps := make([]*Snapshot, len(scopes))
	g, gctx := errgroup.WithContext(ctx)
	for i, storeID := range scopes {
		g.Go(func() error {
			snap, err := s.refreshScope(gctx, storeID)
			if err != nil {
				return err
			}
			snaps[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result(nil, snaps), nil
}

// refreshScope computes and publishes one store's generation. Concurrent
// calls for the same store share one computation.
func (s *Service) refreshScope(ctx context.Context, storeID int64) (*Snapshot, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(storeID, 10), func() (any, error) {
		snap, err := s.compute(ctx, storeID)
		if err != nil {
			return nil, err
		}
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, storeID, snap.Daily, snap.ByCategory); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "publish rollup")
			}
		}

		s.mu.Lock()
		s.snapshots[storeID] = snap
		s.mu.Unlock()

		s.metrics.IncrementRollupRefreshes()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// compute scans the scope's facts and builds a complete generation. The
// scan is a single store read, so the generation reflects one point-in-time
// state of the ledger.
func (s *Service) compute(ctx context.Context, storeID int64) (*Snapshot, error) {
	facts, err := s.facts.ListFacts(ctx, ledger.Filter{StoreID: &storeID})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan ledger facts")
	}

	type dayKey struct{ day time.Time }
	type catKey struct {
		day      time.Time
		category string
	}
	daily := make(map[dayKey]*StoreDaily)
	byCat := make(map[catKey]*StoreDailyCategory)
	categories := make(map[domain.EntryID]string)

	for _, f := range facts {
		day := dayOf(f.OccurredAt)
		cost := f.Weight.Mul(f.UnitCost)

		dk := dayKey{day: day}
		row, ok := daily[dk]
		if !ok {
			row = &StoreDaily{StoreID: storeID, Day: day}
			daily[dk] = row
		}
		row.TotalWeight = row.TotalWeight.Add(f.Weight)
		row.TotalCost = row.TotalCost.Add(cost)

		category, ok := categories[f.EntryID]
		if !ok {
			entry, err := s.entries.FindByID(ctx, f.EntryID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve catalog entry")
			}
			category = entry.Category
			categories[f.EntryID] = category
		}

		ck := catKey{day: day, category: category}
		crow, ok := byCat[ck]
		if !ok {
			crow = &StoreDailyCategory{StoreID: storeID, Day: day, Category: category}
			byCat[ck] = crow
		}
		crow.TotalWeight = crow.TotalWeight.Add(f.Weight)
		crow.TotalCost = crow.TotalCost.Add(cost)
	}

	snap := &Snapshot{StoreID: storeID, ComputedAt: requestcontext.Now(ctx)}
	for _, row := range daily {
		snap.Daily = append(snap.Daily, *row)
	}
	for _, row := range byCat {
		snap.ByCategory = append(snap.ByCategory, *row)
	}
	sort.Slice(snap.Daily, func(i, j int) bool {
		return snap.Daily[i].Day.Before(snap.Daily[j].Day)
	})
	sort.Slice(snap.ByCategory, func(i, j int) bool {
		a, b := snap.ByCategory[i], snap.ByCategory[j]
		if !a.Day.Equal(b.Day) {
			return a.Day.Before(b.Day)
		}
		return a.Category < b.Category
	})
	return snap, nil
}

// activeScopes lists every store that has at least one fact.
func (s *Service) activeScopes(ctx context.Context) ([]int64, error) {
	facts, err := s.facts.ListFacts(ctx, ledger.Filter{})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan ledger facts")
	}
	seen := make(map[int64]struct{})
	var scopes []int64
	for _, f := range facts {
		if _, ok := seen[f.StoreID]; !ok {
			seen[f.StoreID] = struct{}{}
			scopes = append(scopes, f.StoreID)
		}
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i] < scopes[j] })
	return scopes, nil
}

// Query returns the current generation's rows for a store, optionally
// bounded by [from, to] inclusive on the day bucket. Store-scoped roles are
// pinned to their own store.
func (s *Service) Query(ctx context.Context, actor models.Principal, storeID int64, from, to *time.Time) (*Snapshot, error) {
	if actor.Role != models.RoleAuditor && actor.Role != models.RoleAdmin {
		storeID = actor.StoreID
	}
	d := policy.Authorize(actor, policy.Operation{Entity: policy.EntityLedgerFact, Verb: policy.VerbRead}, policy.Target{StoreID: storeID}, requestcontext.Now(ctx))
	if err := d.Err(); err != nil {
		s.metrics.IncrementPolicyDenials(string(d.Reason))
		return nil, err
	}

	s.mu.RLock()
	snap, ok := s.snapshots[storeID]
	s.mu.RUnlock()
	if !ok {
		return &Snapshot{StoreID: storeID}, nil
	}
	if from == nil && to == nil {
		return snap, nil
	}

	filtered := &Snapshot{StoreID: storeID, ComputedAt: snap.ComputedAt}
	for _, row := range snap.Daily {
		if inRange(row.Day, from, to) {
			filtered.Daily = append(filtered.Daily, row)
		}
	}
	for _, row := range snap.ByCategory {
		if inRange(row.Day, from, to) {
			filtered.ByCategory = append(filtered.ByCategory, row)
		}
	}
	return filtered, nil
}

func inRange(day time.Time, from, to *time.Time) bool {
	if from != nil && day.Before(dayOf(*from)) {
		return false
	}
	if to != nil && day.After(dayOf(*to)) {
		return false
	}
	return true
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func result(scope *int64, snaps []*Snapshot) *RefreshResult {
	res := &RefreshResult{Scope: scope}
	for _, snap := range snaps {
		res.StoreDays += len(snap.Daily)
		res.CategoryRows += len(snap.ByCategory)
		if snap.ComputedAt.After(res.ComputedAt) {
			res.ComputedAt = snap.ComputedAt
		}
	}
	return res
}
