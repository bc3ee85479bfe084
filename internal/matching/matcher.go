package matching

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/attribution-engine/internal/domain"
	"github.com/BarkinBalci/attribution-engine/internal/repository"
)

// MatchCache memoizes scored-match results within a single ingestion run,
// keyed by signal tuple and purchase day. Identical tuples recur often
// (guest checkouts) and must not re-trigger repository lookups. The cache
// is created per invocation so concurrent per-store runs cannot
// cross-contaminate.
type MatchCache struct {
	entries map[string]*domain.AttributionMatch
	Lookups int
	Hits    int
}

// NewMatchCache creates an empty per-run cache.
func NewMatchCache() *MatchCache {
	return &MatchCache{entries: make(map[string]*domain.AttributionMatch)}
}

func cacheKey(sig domain.Signals, before time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		sig.ClickID, sig.FBC, sig.FBP, sig.EmailHash,
		before.UTC().Format("2006-01-02"))
}

// Matcher runs confidence-scored signal matching against the event store.
type Matcher struct {
	repo       repository.EventRepository
	thresholds Thresholds
	log        *zap.Logger
}

// NewMatcher creates a new scored matcher.
func NewMatcher(repo repository.EventRepository, thresholds Thresholds, log *zap.Logger) *Matcher {
	return &Matcher{
		repo:       repo,
		thresholds: thresholds,
		log:        log,
	}
}

// Match finds the best prior touch for the signal set, applying the
// acceptance thresholds. Rejected and empty results are cached as nil so
// repeated tuples cost one lookup per run. Returns nil when no acceptable
// match exists.
func (m *Matcher) Match(ctx context.Context, storeID string, sig domain.Signals, before time.Time, cache *MatchCache) (*domain.AttributionMatch, error) {
	if !sig.HasIdentity() {
		return nil, nil
	}

	key := cacheKey(sig, before)
	cache.Lookups++
	if cached, ok := cache.entries[key]; ok {
		cache.Hits++
		return cached, nil
	}

	match, err := m.repo.FindScoredMatch(ctx, storeID, sig, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query scored match: %w", err)
	}

	if match != nil && !m.thresholds.Accept(match) {
		m.log.Debug("Scored match below threshold",
			zap.String("store_id", storeID),
			zap.Float64("confidence", match.Confidence),
			zap.Strings("matched_signals", match.MatchedSignals))
		match = nil
	}

	cache.entries[key] = match
	return match, nil
}

// NearestTouch finds the temporally nearest touch within the window,
// regardless of signal equality. Only meaningful after Match rejected
// while at least one signal was present; callers enforce that ordering.
func (m *Matcher) NearestTouch(ctx context.Context, storeID string, occurredAt time.Time, window time.Duration) (*domain.AttributionMatch, error) {
	match, err := m.repo.FindNearestInTime(ctx, storeID, occurredAt, window)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest touch: %w", err)
	}
	return match, nil
}
