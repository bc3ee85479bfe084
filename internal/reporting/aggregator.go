// Package reporting implements the stateless windowed attribution
// report over stored tracking events.
package reporting

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/attribution-engine/internal/domain"
	"github.com/BarkinBalci/attribution-engine/internal/repository"
)

// Report is the windowed attribution summary for one store.
//
// First-click and last-click revenue both carry full credit for their
// respective touch; they differ in which touch is credited, not in
// amount. A decay or split-credit model would diverge them.
type Report struct {
	StoreID                     string  `json:"store_id"`
	WindowDays                  int     `json:"window_days"`
	PurchaseCount               int     `json:"purchase_count"`
	PurchaseRevenue             float64 `json:"purchase_revenue"`
	AttributedRevenueFirstClick float64 `json:"attributed_revenue_first_click"`
	AttributedRevenueLastClick  float64 `json:"attributed_revenue_last_click"`
	DeterministicCount          int     `json:"deterministic_count"`
	ModeledCount                int     `json:"modeled_count"`
	EntityMappedCount           int     `json:"entity_mapped_count"`
	TouchMatchedCount           int     `json:"touch_matched_count"`
	AttributedCount             int     `json:"attributed_count"`
	UnattributedCount           int     `json:"unattributed_count"`
	UnattributedShare           float64 `json:"unattributed_share_pct"`
	AttributionRate             float64 `json:"attribution_rate_pct"`
}

// Aggregator produces attribution reports. It is read-only and safe to
// run concurrently with ingestion; in-flight orders not yet committed
// are simply absent from the report.
type Aggregator struct {
	repo repository.EventRepository
	log  *zap.Logger
	now  func() time.Time
}

// NewAggregator creates an aggregator.
func NewAggregator(repo repository.EventRepository, log *zap.Logger) *Aggregator {
	return &Aggregator{repo: repo, log: log, now: time.Now}
}

// WithClock overrides the aggregator clock for deterministic tests.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Report aggregates the store's events over the trailing window.
//
// Candidate touches for a purchase are any touches at or before the
// purchase sharing ANY identity signal. This is intentionally looser
// than scored matching: the report measures aggregate coverage, not
// entity assignment.
func (a *Aggregator) Report(ctx context.Context, storeID string, windowDays int) (*Report, error) {
	since := a.now().AddDate(0, 0, -windowDays)

	events, err := a.repo.EventsSince(ctx, storeID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for report: %w", err)
	}

	var purchases, touches []*domain.TrackingEvent
	for _, e := range events {
		switch {
		case e.IsPurchase():
			purchases = append(purchases, e)
		case e.IsTouch():
			touches = append(touches, e)
		}
	}

	report := &Report{
		StoreID:    storeID,
		WindowDays: windowDays,
	}

	for _, purchase := range purchases {
		report.PurchaseCount++
		report.PurchaseRevenue += purchase.Value

		touchMatched := false
		for _, touch := range touches {
			if !touch.OccurredAt.After(purchase.OccurredAt) && touch.SharesSignal(purchase) {
				touchMatched = true
				break
			}
		}
		// A purchase entity-mapped at ingestion counts as attributed
		// even with zero matching touches: ad-blockers can suppress the
		// pixel touch while server-side mapping still succeeded.
		entityMapped := purchase.HasEntityIDs()

		if touchMatched {
			report.TouchMatchedCount++
		}
		if entityMapped {
			report.EntityMappedCount++
		}

		switch purchase.AttributionMethod {
		case domain.MethodDeterministic:
			report.DeterministicCount++
		case domain.MethodModeled:
			report.ModeledCount++
		}

		if touchMatched || entityMapped {
			report.AttributedCount++
			report.AttributedRevenueFirstClick += purchase.Value
			report.AttributedRevenueLastClick += purchase.Value
		} else {
			report.UnattributedCount++
		}
	}

	if report.PurchaseCount > 0 {
		report.AttributionRate = round2(100 * float64(report.AttributedCount) / float64(report.PurchaseCount))
		report.UnattributedShare = round2(100 * float64(report.UnattributedCount) / float64(report.PurchaseCount))
	}

	a.log.Info("Report generated",
		zap.String("store_id", storeID),
		zap.Int("window_days", windowDays),
		zap.Int("purchases", report.PurchaseCount),
		zap.Int("attributed", report.AttributedCount),
		zap.Float64("attribution_rate", report.AttributionRate))

	return report, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
