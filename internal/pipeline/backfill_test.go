package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BarkinBalci/attribution-engine/internal/domain"
	"github.com/BarkinBalci/attribution-engine/internal/matching"
	"github.com/BarkinBalci/attribution-engine/internal/orders"
	"github.com/BarkinBalci/attribution-engine/internal/repository/memory"
	"github.com/BarkinBalci/attribution-engine/internal/taxonomy"
)

const testStore = "store_1"

var runAt = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

// fakeFeed serves orders by cursor like the upstream API: orders with ID
// greater than since_id, capped at limit, oldest IDs first.
type fakeFeed struct {
	orders []orders.Order
	calls  int
	failAt int // fail the Nth call (1-based); 0 disables
}

func (f *fakeFeed) List(_ context.Context, _ string, sinceID int64, createdAtMin time.Time, limit int) ([]orders.Order, error) {
	f.calls++
	if f.failAt > 0 && f.calls >= f.failAt {
		return nil, errors.New("upstream returned 500")
	}

	var page []orders.Order
	for _, o := range f.orders {
		if o.ID <= sinceID || o.CreatedAt.Before(createdAtMin) {
			continue
		}
		page = append(page, o)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

// mapResolver resolves utm_campaign names from a fixed map.
type mapResolver struct {
	campaigns map[string]string
}

func (r *mapResolver) ResolveEntityIDsFromUTMs(_ context.Context, _ string, utmCampaign, _, _ string, known domain.EntityIDs) domain.EntityIDs {
	if known.CampaignID == "" && utmCampaign != "" {
		known.CampaignID = r.campaigns[taxonomy.NormalizeName(utmCampaign)]
	}
	return known
}

func testConfig() Config {
	return Config{
		PageSize:         250,
		MaxPages:         40,
		ProximityWindow:  120 * time.Minute,
		ExecutionCeiling: 5 * time.Minute,
	}
}

func newTestBackfill(repo *memory.Repository, feed orders.Feed, resolver taxonomy.Resolver, cfg Config) *Backfill {
	log := zap.NewNop()
	matcher := matching.NewMatcher(repo, matching.DefaultThresholds(), log)
	return NewBackfill(feed, repo, matcher, resolver, cfg, log).
		WithClock(func() time.Time { return runAt })
}

func order(id int64, createdAgo time.Duration, mutate func(*orders.Order)) orders.Order {
	o := orders.Order{
		ID:              id,
		Email:           fmt.Sprintf("buyer%d@example.com", id),
		CreatedAt:       runAt.Add(-createdAgo),
		UpdatedAt:       runAt.Add(-createdAgo),
		TotalPrice:      "100.00",
		Currency:        "USD",
		FinancialStatus: "paid",
	}
	if mutate != nil {
		mutate(&o)
	}
	return o
}

func seedTouch(t *testing.T, repo *memory.Repository, eventID string, occurredAgo time.Duration, mutate func(*domain.TrackingEvent)) {
	t.Helper()
	touch := &domain.TrackingEvent{
		StoreID:    testStore,
		EventID:    eventID,
		EventName:  domain.EventPageView,
		Source:     domain.SourceBrowser,
		OccurredAt: runAt.Add(-occurredAgo),
		CampaignID: "1200123",
		AdSetID:    "1300456",
		AdID:       "1400789",
	}
	if mutate != nil {
		mutate(touch)
	}
	_, err := repo.Upsert(context.Background(), touch)
	assert.NoError(t, err)
}

func TestBackfill_ScenarioA_SignalExtractionAndIdempotence(t *testing.T) {
	repo := memory.NewRepository()
	feed := &fakeFeed{orders: []orders.Order{
		order(1001, time.Hour, func(o *orders.Order) {
			o.LandingSite = "https://shop.example.com/?fbclid=abc123&utm_campaign=summer_sale"
		}),
	}}
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, testConfig())

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.OrdersScanned)
	assert.Equal(t, 1, summary.EventsInserted)
	assert.Equal(t, 0, summary.EventsUpdated)

	events, err := repo.EventsSince(context.Background(), testStore, runAt.AddDate(0, 0, -7))
	assert.NoError(t, err)
	assert.Len(t, events, 1)

	purchase := events[0]
	assert.Equal(t, "shopify_order_1001", purchase.EventID)
	assert.Equal(t, domain.EventPurchase, purchase.EventName)
	assert.Equal(t, "abc123", purchase.ClickID)
	assert.Equal(t, fmt.Sprintf("fb.1.%d.abc123", runAt.Unix()), purchase.FBC)
	assert.Equal(t, 100.00, purchase.Value)

	// Re-running the same window creates zero additional events.
	rerun, err := backfill.Run(context.Background(), testStore, 7)
	assert.NoError(t, err)
	assert.Equal(t, 0, rerun.EventsInserted)
	assert.Equal(t, 1, rerun.EventsUpdated)

	events, err = repo.EventsSince(context.Background(), testStore, runAt.AddDate(0, 0, -7))
	assert.NoError(t, err)
	assert.Len(t, events, 1, "re-ingestion must not duplicate the purchase")
}

func TestBackfill_ScenarioB_SharedSignalsSingleLookup(t *testing.T) {
	repo := memory.NewRepository()
	seedTouch(t, repo, "touch_1", 3*time.Hour, func(e *domain.TrackingEvent) {
		e.ClickID = "abc123"
	})

	shared := func(o *orders.Order) {
		o.Email = "guest@example.com"
		o.LandingSite = "https://shop.example.com/?fbclid=abc123"
	}
	feed := &fakeFeed{orders: []orders.Order{
		order(1001, 2*time.Hour, shared),
		order(1002, time.Hour, shared),
	}}
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, testConfig())

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err)
	assert.Equal(t, 2, summary.EventsInserted)
	assert.Equal(t, 2, summary.MatchLookups)
	assert.Equal(t, 1, summary.MatchCacheHits, "identical signal tuples share one lookup per run")

	events, err := repo.EventsSince(context.Background(), testStore, runAt.AddDate(0, 0, -7))
	assert.NoError(t, err)

	var purchases int
	for _, e := range events {
		if e.IsPurchase() {
			purchases++
			assert.Equal(t, "1200123", e.CampaignID)
			assert.Equal(t, domain.MethodModeled, e.AttributionMethod)
		}
	}
	assert.Equal(t, 2, purchases, "distinct orders yield distinct events")
}

func TestBackfill_DirectMappingIsDeterministic(t *testing.T) {
	repo := memory.NewRepository()
	feed := &fakeFeed{orders: []orders.Order{
		order(1001, time.Hour, func(o *orders.Order) {
			o.LandingSite = "https://shop.example.com/?campaign_id=1200123&adset_id=1300456&ad_id=1400789"
		}),
	}}
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, testConfig())

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Deterministic)
	assert.Equal(t, 0, summary.Modeled)
	assert.Equal(t, 1, summary.InsertedMapped)
	assert.Equal(t, 0, summary.MatchLookups, "complete direct mapping short-circuits matching")
}

func TestBackfill_UTMResolutionIsDeterministic(t *testing.T) {
	repo := memory.NewRepository()
	feed := &fakeFeed{orders: []orders.Order{
		order(1001, time.Hour, func(o *orders.Order) {
			o.LandingSite = "https://shop.example.com/?utm_campaign=Summer+Sale"
		}),
	}}
	resolver := &mapResolver{campaigns: map[string]string{"summer_sale": "1200123"}}
	backfill := newTestBackfill(repo, feed, resolver, testConfig())

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Deterministic)

	events, _ := repo.EventsSince(context.Background(), testStore, runAt.AddDate(0, 0, -7))
	assert.Equal(t, "1200123", events[0].CampaignID)
	assert.Equal(t, domain.MethodDeterministic, events[0].AttributionMethod)
}

func TestBackfill_TimeProximityFallback(t *testing.T) {
	repo := memory.NewRepository()
	// The touch shares no signal with the purchase, so scoring rejects
	// and the nearest-in-window touch is used instead.
	seedTouch(t, repo, "touch_1", 90*time.Minute, func(e *domain.TrackingEvent) {
		e.FBP = "fb.1.2.unrelated"
	})

	feed := &fakeFeed{orders: []orders.Order{
		order(1001, time.Hour, func(o *orders.Order) {
			o.LandingSite = "https://shop.example.com/?fbclid=abc123"
		}),
	}}
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, testConfig())

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Modeled)

	events, _ := repo.EventsSince(context.Background(), testStore, runAt.AddDate(0, 0, -7))
	for _, e := range events {
		if e.IsPurchase() {
			assert.Equal(t, "1200123", e.CampaignID)
			assert.Equal(t, domain.MethodModeled, e.AttributionMethod)
			assert.Contains(t, e.Metadata, domain.StrategyTimeProximity)
		}
	}
}

func TestBackfill_ProximityFillsPartialDirectMapping(t *testing.T) {
	repo := memory.NewRepository()
	// The touch shares no signal, so scoring rejects; its adset and ad
	// fill the levels direct mapping left open without overwriting the
	// directly mapped campaign.
	seedTouch(t, repo, "touch_1", 90*time.Minute, func(e *domain.TrackingEvent) {
		e.FBP = "fb.1.2.unrelated"
		e.CampaignID = "1200999"
	})

	feed := &fakeFeed{orders: []orders.Order{
		order(1001, time.Hour, func(o *orders.Order) {
			o.LandingSite = "https://shop.example.com/?campaign_id=1200123&fbclid=abc123"
		}),
	}}
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, testConfig())

	_, err := backfill.Run(context.Background(), testStore, 7)
	assert.NoError(t, err)

	events, _ := repo.EventsSince(context.Background(), testStore, runAt.AddDate(0, 0, -7))
	purchase := findEvent(events, "shopify_order_1001")
	assert.NotNil(t, purchase)
	assert.Equal(t, "1200123", purchase.CampaignID, "direct mapping is never overwritten")
	assert.Equal(t, "1300456", purchase.AdSetID, "nearest touch fills the remaining levels")
	assert.Equal(t, "1400789", purchase.AdID)
	assert.Contains(t, purchase.Metadata, domain.StrategyTimeProximity)
}

func TestBackfill_Pagination(t *testing.T) {
	repo := memory.NewRepository()
	var all []orders.Order
	for i := int64(1); i <= 5; i++ {
		all = append(all, order(1000+i, time.Duration(i)*time.Hour, nil))
	}
	feed := &fakeFeed{orders: all}

	cfg := testConfig()
	cfg.PageSize = 2
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, cfg)

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err)
	assert.Equal(t, 5, summary.OrdersScanned)
	assert.Equal(t, 3, summary.PagesScanned)
	assert.Equal(t, 3, feed.calls, "short final page stops pagination")
	assert.False(t, summary.Partial)
}

func TestBackfill_MaxPagesGuard(t *testing.T) {
	repo := memory.NewRepository()
	var all []orders.Order
	for i := int64(1); i <= 10; i++ {
		all = append(all, order(1000+i, time.Duration(i)*time.Minute, nil))
	}
	feed := &fakeFeed{orders: all}

	cfg := testConfig()
	cfg.PageSize = 2
	cfg.MaxPages = 3
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, cfg)

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err)
	assert.Equal(t, 6, summary.OrdersScanned, "page-count bound guards against runaway pagination")
	assert.Equal(t, 3, feed.calls)
}

func TestBackfill_PageFailureReturnsPartialSummary(t *testing.T) {
	repo := memory.NewRepository()
	var all []orders.Order
	for i := int64(1); i <= 4; i++ {
		all = append(all, order(1000+i, time.Duration(i)*time.Hour, nil))
	}
	feed := &fakeFeed{orders: all, failAt: 2}

	cfg := testConfig()
	cfg.PageSize = 2
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, cfg)

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err, "pagination failures are absorbed into a partial summary")
	assert.True(t, summary.Partial)
	assert.Equal(t, "page fetch failed", summary.PartialReason)
	assert.Equal(t, 2, summary.OrdersScanned)

	events, _ := repo.EventsSince(context.Background(), testStore, runAt.AddDate(0, 0, -7))
	assert.Len(t, events, 2, "committed upserts stay durable")
}

func TestBackfill_ExecutionCeiling(t *testing.T) {
	repo := memory.NewRepository()
	var all []orders.Order
	for i := int64(1); i <= 4; i++ {
		all = append(all, order(1000+i, time.Duration(i)*time.Hour, nil))
	}
	feed := &fakeFeed{orders: all}

	cfg := testConfig()
	cfg.ExecutionCeiling = 90 * time.Second

	log := zap.NewNop()
	matcher := matching.NewMatcher(repo, matching.DefaultThresholds(), log)
	backfill := NewBackfill(feed, repo, matcher, taxonomy.NopResolver{}, cfg, log)

	// Each clock read advances one minute; the ceiling trips mid-page.
	tick := 0
	backfill.WithClock(func() time.Time {
		tick++
		return runAt.Add(time.Duration(tick) * time.Minute)
	})

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err)
	assert.True(t, summary.Partial)
	assert.Equal(t, "execution ceiling reached", summary.PartialReason)
	assert.Less(t, summary.OrdersScanned, 4)
}

func TestBackfill_RefundTransactionPrecedence(t *testing.T) {
	repo := memory.NewRepository()
	feed := &fakeFeed{orders: []orders.Order{
		order(1001, time.Hour, func(o *orders.Order) {
			o.Refunds = []orders.Refund{{
				ID:        501,
				CreatedAt: runAt.Add(-30 * time.Minute),
				Transactions: []orders.Transaction{
					{Kind: "refund", Status: "success", Amount: "10.00"},
					{Kind: "void", Status: "success", Amount: "99.00"},
				},
				RefundLineItems: []orders.RefundLineItem{{Subtotal: "15.00"}},
			}}
		}),
	}}
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, testConfig())

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.RefundsEmitted)

	events, _ := repo.EventsSince(context.Background(), testStore, runAt.AddDate(0, 0, -7))
	refund := findEvent(events, "shopify_refund_501")
	assert.NotNil(t, refund)
	assert.Equal(t, 10.00, refund.Value, "tagged refund transactions outrank line-item subtotals")
}

func TestBackfill_RefundLineItemFallback(t *testing.T) {
	repo := memory.NewRepository()
	feed := &fakeFeed{orders: []orders.Order{
		order(1001, time.Hour, func(o *orders.Order) {
			o.Refunds = []orders.Refund{{
				ID:              501,
				CreatedAt:       runAt.Add(-30 * time.Minute),
				RefundLineItems: []orders.RefundLineItem{{Subtotal: "15.00"}},
			}}
		}),
	}}
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, testConfig())

	_, err := backfill.Run(context.Background(), testStore, 7)
	assert.NoError(t, err)

	events, _ := repo.EventsSince(context.Background(), testStore, runAt.AddDate(0, 0, -7))
	refund := findEvent(events, "shopify_refund_501")
	assert.NotNil(t, refund)
	assert.Equal(t, 15.00, refund.Value)
}

func TestBackfill_ZeroAmountRefundSkipped(t *testing.T) {
	repo := memory.NewRepository()
	feed := &fakeFeed{orders: []orders.Order{
		order(1001, time.Hour, func(o *orders.Order) {
			o.Refunds = []orders.Refund{{ID: 501, CreatedAt: runAt.Add(-30 * time.Minute)}}
		}),
	}}
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, testConfig())

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err)
	assert.Equal(t, 0, summary.RefundsEmitted, "amount must be strictly positive")
}

func TestBackfill_ImpliedFullRefund(t *testing.T) {
	repo := memory.NewRepository()
	feed := &fakeFeed{orders: []orders.Order{
		order(1001, time.Hour, func(o *orders.Order) {
			o.FinancialStatus = "refunded"
		}),
	}}
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, testConfig())

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.RefundsEmitted)

	events, _ := repo.EventsSince(context.Background(), testStore, runAt.AddDate(0, 0, -7))
	refund := findEvent(events, "shopify_order_1001_refund_0")
	assert.NotNil(t, refund, "refunded status without refund records implies a full refund")
	assert.Equal(t, 100.00, refund.Value)
}

func TestBackfill_NoImpliedRefundWhenRecordsExist(t *testing.T) {
	repo := memory.NewRepository()
	feed := &fakeFeed{orders: []orders.Order{
		order(1001, time.Hour, func(o *orders.Order) {
			o.FinancialStatus = "refunded"
			o.Refunds = []orders.Refund{{ID: 501, CreatedAt: runAt.Add(-30 * time.Minute)}}
		}),
	}}
	backfill := newTestBackfill(repo, feed, taxonomy.NopResolver{}, testConfig())

	summary, err := backfill.Run(context.Background(), testStore, 7)

	assert.NoError(t, err)
	assert.Equal(t, 0, summary.RefundsEmitted, "explicit refund records suppress the implied full refund")

	events, _ := repo.EventsSince(context.Background(), testStore, runAt.AddDate(0, 0, -7))
	assert.Nil(t, findEvent(events, "shopify_order_1001_refund_0"))
}

func findEvent(events []*domain.TrackingEvent, eventID string) *domain.TrackingEvent {
	for _, e := range events {
		if e.EventID == eventID {
			return e
		}
	}
	return nil
}
