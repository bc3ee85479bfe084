// Package pipeline implements the backfill driver: paginated order
// ingestion, the attribution cascade, and idempotent event emission.
package pipeline

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BarkinBalci/attribution-engine/internal/domain"
	"github.com/BarkinBalci/attribution-engine/internal/matching"
	"github.com/BarkinBalci/attribution-engine/internal/orders"
	"github.com/BarkinBalci/attribution-engine/internal/repository"
	"github.com/BarkinBalci/attribution-engine/internal/signals"
	"github.com/BarkinBalci/attribution-engine/internal/taxonomy"
)

// Config configures one backfill invocation.
type Config struct {
	PageSize         int
	MaxPages         int
	ProximityWindow  time.Duration
	ExecutionCeiling time.Duration
}

// Summary carries the running counters of a backfill run. A run that
// stops early (pagination failure, execution ceiling) still returns a
// summary with Partial set; committed upserts stay durable.
type Summary struct {
	RunID           string `json:"run_id"`
	StoreID         string `json:"store_id"`
	Domain          string `json:"domain,omitempty"`
	Days            int    `json:"days"`
	PagesScanned    int    `json:"pages_scanned"`
	OrdersScanned   int    `json:"orders_scanned"`
	EventsInserted  int    `json:"events_inserted"`
	EventsUpdated   int    `json:"events_updated"`
	InsertedMapped  int    `json:"inserted_mapped"`
	UpdatedMapped   int    `json:"updated_mapped"`
	RefundsEmitted  int    `json:"refunds_emitted"`
	Deterministic   int    `json:"deterministic"`
	Modeled         int    `json:"modeled"`
	MatchLookups    int    `json:"match_lookups"`
	MatchCacheHits  int    `json:"match_cache_hits"`
	Partial         bool   `json:"partial"`
	PartialReason   string `json:"partial_reason,omitempty"`
	DurationMillis  int64  `json:"duration_ms"`
}

// Backfill walks a store's order history and emits tracking events.
type Backfill struct {
	feed     orders.Feed
	repo     repository.EventRepository
	matcher  *matching.Matcher
	taxonomy taxonomy.Resolver
	config   Config
	log      *zap.Logger
	now      func() time.Time
}

// NewBackfill creates a backfill driver.
func NewBackfill(feed orders.Feed, repo repository.EventRepository, matcher *matching.Matcher, tax taxonomy.Resolver, config Config, log *zap.Logger) *Backfill {
	return &Backfill{
		feed:     feed,
		repo:     repo,
		matcher:  matcher,
		taxonomy: tax,
		config:   config,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the pipeline clock. Tests use it to pin fbc
// synthesis and deadline behavior.
func (b *Backfill) WithClock(now func() time.Time) *Backfill {
	b.now = now
	return b
}

// Run ingests the store's trailing order window. Pagination is strictly
// sequential: each page's cursor is the max order ID of the previous
// page. Page-fetch failures and the execution ceiling stop the loop but
// never discard committed per-order upserts; the summary is returned
// either way. Re-running the same window is idempotent.
func (b *Backfill) Run(ctx context.Context, storeID string, days int) (*Summary, error) {
	start := b.now()
	deadline := start.Add(b.config.ExecutionCeiling)
	createdAtMin := start.AddDate(0, 0, -days)
	cache := matching.NewMatchCache()

	summary := &Summary{
		RunID:   uuid.NewString(),
		StoreID: storeID,
		Days:    days,
	}

	b.log.Info("Backfill started",
		zap.String("run_id", summary.RunID),
		zap.String("store_id", storeID),
		zap.Int("days", days),
		zap.Time("created_at_min", createdAtMin))

	var sinceID int64

pages:
	for page := 0; page < b.config.MaxPages; page++ {
		if b.now().After(deadline) {
			summary.Partial = true
			summary.PartialReason = "execution ceiling reached"
			break
		}

		pageOrders, err := b.feed.List(ctx, storeID, sinceID, createdAtMin, b.config.PageSize)
		if err != nil {
			// Absorbed: committed upserts stay durable and the run
			// returns a partial summary instead of failing wholesale.
			b.log.Warn("Page fetch failed, stopping pagination",
				zap.Error(err),
				zap.String("run_id", summary.RunID),
				zap.Int64("since_id", sinceID),
				zap.Int("page", page))
			summary.Partial = true
			summary.PartialReason = "page fetch failed"
			break
		}

		if len(pageOrders) == 0 {
			break
		}
		summary.PagesScanned++

		for _, order := range pageOrders {
			if order.ID > sinceID {
				sinceID = order.ID
			}
			if b.now().After(deadline) {
				summary.Partial = true
				summary.PartialReason = "execution ceiling reached"
				break pages
			}
			b.processOrder(ctx, cache, storeID, order, summary)
		}

		// A short page means the window is exhausted.
		if len(pageOrders) < b.config.PageSize {
			break
		}
	}

	summary.MatchLookups = cache.Lookups
	summary.MatchCacheHits = cache.Hits
	summary.DurationMillis = b.now().Sub(start).Milliseconds()

	b.log.Info("Backfill finished",
		zap.String("run_id", summary.RunID),
		zap.String("store_id", storeID),
		zap.Int("pages", summary.PagesScanned),
		zap.Int("orders", summary.OrdersScanned),
		zap.Int("inserted", summary.EventsInserted),
		zap.Int("updated", summary.EventsUpdated),
		zap.Int("refunds", summary.RefundsEmitted),
		zap.Bool("partial", summary.Partial))

	return summary, nil
}

// processOrder runs the attribution cascade for one order and upserts
// its purchase and refund events. Cascade priority: direct mapping,
// scored match, time-proximity fallback, UTM resolution for remaining
// gaps.
func (b *Backfill) processOrder(ctx context.Context, cache *matching.MatchCache, storeID string, order orders.Order, summary *Summary) {
	summary.OrdersScanned++

	rec := sourceRecord(order)
	sig := signals.Extract(rec, b.now())
	direct := signals.MapEntityIDs(rec)
	ids := direct

	var match *domain.AttributionMatch

	if !ids.Complete() && sig.HasIdentity() {
		m, err := b.matcher.Match(ctx, storeID, sig, order.CreatedAt, cache)
		if err != nil {
			b.log.Warn("Scored match failed",
				zap.Error(err),
				zap.String("store_id", storeID),
				zap.Int64("order_id", order.ID))
		} else if m != nil {
			match = m
			ids = ids.Merge(m.EntityIDs())
		}

		// The fallback runs whenever scoring rejected while a signal was
		// present, even if direct mapping resolved some levels; Merge
		// keeps those untouched.
		if match == nil {
			m, err := b.matcher.NearestTouch(ctx, storeID, order.CreatedAt, b.config.ProximityWindow)
			if err != nil {
				b.log.Warn("Time-proximity lookup failed",
					zap.Error(err),
					zap.String("store_id", storeID),
					zap.Int64("order_id", order.ID))
			} else if m != nil {
				match = m
				ids = ids.Merge(m.EntityIDs())
			}
		}
	}

	utmContributed := false
	if !ids.Complete() && (sig.UTMCampaign != "" || sig.UTMMedium != "" || sig.UTMContent != "") {
		resolved := b.taxonomy.ResolveEntityIDsFromUTMs(ctx, storeID, sig.UTMCampaign, sig.UTMMedium, sig.UTMContent, ids)
		utmContributed = resolved != ids
		ids = resolved
	}

	method := classifyMethod(ids, direct, utmContributed)

	orderID := strconv.FormatInt(order.ID, 10)
	eventID, err := b.repo.ExistingPurchaseEventID(ctx, storeID, orderID)
	if err != nil {
		b.log.Warn("Existing purchase lookup failed",
			zap.Error(err),
			zap.String("store_id", storeID),
			zap.String("order_id", orderID))
		eventID = ""
	}
	if eventID == "" {
		eventID = "shopify_order_" + orderID
	}

	event := &domain.TrackingEvent{
		StoreID:           storeID,
		EventID:           eventID,
		EventName:         domain.EventPurchase,
		Source:            domain.SourceShopify,
		OccurredAt:        order.CreatedAt,
		ClickID:           sig.ClickID,
		FBC:               sig.FBC,
		FBP:               sig.FBP,
		EmailHash:         sig.EmailHash,
		Value:             orders.ParseAmount(order.TotalPrice),
		Currency:          order.Currency,
		OrderID:           orderID,
		CampaignID:        ids.CampaignID,
		AdSetID:           ids.AdSetID,
		AdID:              ids.AdID,
		AttributionMethod: method,
		Metadata:          diagnosticPayload(summary.RunID, sig, match),
	}

	result, err := b.repo.Upsert(ctx, event)
	if err != nil {
		b.log.Error("Failed to upsert purchase event",
			zap.Error(err),
			zap.String("store_id", storeID),
			zap.String("order_id", orderID))
		return
	}
	countUpsert(summary, result, event)

	switch method {
	case domain.MethodDeterministic:
		summary.Deterministic++
	case domain.MethodModeled:
		summary.Modeled++
	}

	b.emitRefunds(ctx, storeID, order, event, summary)
}

// classifyMethod labels the attribution. Direct and UTM mappings come
// from data present at click time and are deterministic; anything filled
// only by scored matching or time proximity is modeled.
func classifyMethod(ids, direct domain.EntityIDs, utmContributed bool) string {
	if ids.Empty() {
		return ""
	}
	if !direct.Empty() || utmContributed {
		return domain.MethodDeterministic
	}
	return domain.MethodModeled
}

func countUpsert(summary *Summary, result repository.UpsertResult, event *domain.TrackingEvent) {
	if result.Inserted {
		summary.EventsInserted++
		if event.HasEntityIDs() {
			summary.InsertedMapped++
		}
	}
	if result.Updated {
		summary.EventsUpdated++
		if event.HasEntityIDs() {
			summary.UpdatedMapped++
		}
	}
}

func sourceRecord(order orders.Order) signals.SourceRecord {
	attrs := make([]signals.Attribute, 0, len(order.NoteAttributes))
	for _, a := range order.NoteAttributes {
		attrs = append(attrs, signals.Attribute{Name: a.Name, Value: a.Value})
	}
	return signals.SourceRecord{
		LandingURL:     order.LandingSite,
		OrderStatusURL: order.OrderStatusURL,
		ReferringURL:   order.ReferringSite,
		Email:          order.Email,
		NoteAttributes: attrs,
	}
}

// diagnosticPayload serializes match diagnostics into the event's opaque
// metadata column.
func diagnosticPayload(runID string, sig domain.Signals, match *domain.AttributionMatch) string {
	payload := map[string]interface{}{
		"run_id": runID,
	}
	if sig.UTMCampaign != "" {
		payload["utm_campaign"] = sig.UTMCampaign
	}
	if sig.UTMMedium != "" {
		payload["utm_medium"] = sig.UTMMedium
	}
	if sig.UTMContent != "" {
		payload["utm_content"] = sig.UTMContent
	}
	if match != nil {
		payload["strategy"] = match.Strategy
		payload["confidence"] = match.Confidence
		payload["matched_signals"] = match.MatchedSignals
		payload["age_hours"] = match.AgeHours
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}
