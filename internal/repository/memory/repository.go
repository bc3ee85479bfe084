// Package memory provides an in-memory EventRepository with the same
// matching semantics as the ClickHouse implementation. Used by tests and
// the backfill CLI's dry-run mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BarkinBalci/attribution-engine/internal/domain"
	"github.com/BarkinBalci/attribution-engine/internal/matching"
	"github.com/BarkinBalci/attribution-engine/internal/repository"
)

// Repository implements EventRepository in memory.
type Repository struct {
	mu     sync.RWMutex
	events map[string]map[string]*domain.TrackingEvent
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		events: make(map[string]map[string]*domain.TrackingEvent),
	}
}

// Upsert stores the event keyed on (store_id, event_id).
func (r *Repository) Upsert(_ context.Context, event *domain.TrackingEvent) (repository.UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.events[event.StoreID]
	if !ok {
		store = make(map[string]*domain.TrackingEvent)
		r.events[event.StoreID] = store
	}

	_, existed := store[event.EventID]

	stored := *event
	if stored.Version == 0 {
		stored.Version = uint64(time.Now().UnixNano())
	}
	if stored.ProcessedAt.IsZero() {
		stored.ProcessedAt = time.Now()
	}
	store[event.EventID] = &stored

	if existed {
		return repository.UpsertResult{Updated: true}, nil
	}
	return repository.UpsertResult{Inserted: true}, nil
}

// FindScoredMatch scores all prior signal-sharing touches and returns
// the best, or nil.
func (r *Repository) FindScoredMatch(_ context.Context, storeID string, sig domain.Signals, before time.Time) (*domain.AttributionMatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*domain.TrackingEvent
	for _, e := range r.events[storeID] {
		if e.IsTouch() && !e.OccurredAt.After(before) {
			candidates = append(candidates, e)
		}
	}

	return matching.BestCandidate(candidates, sig, before), nil
}

// FindNearestInTime returns the touch closest to occurredAt within the
// window, ignoring signal equality.
func (r *Repository) FindNearestInTime(_ context.Context, storeID string, occurredAt time.Time, window time.Duration) (*domain.AttributionMatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	earliest := occurredAt.Add(-window)

	var nearest *domain.TrackingEvent
	for _, e := range r.events[storeID] {
		if !e.IsTouch() || e.OccurredAt.After(occurredAt) || e.OccurredAt.Before(earliest) {
			continue
		}
		if nearest == nil || e.OccurredAt.After(nearest.OccurredAt) {
			nearest = e
		}
	}

	if nearest == nil {
		return nil, nil
	}
	return matching.ProximityMatch(nearest, occurredAt, window), nil
}

// EventsSince returns the store's events at or after since, oldest first.
func (r *Repository) EventsSince(_ context.Context, storeID string, since time.Time) ([]*domain.TrackingEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []*domain.TrackingEvent
	for _, e := range r.events[storeID] {
		if !e.OccurredAt.Before(since) {
			copied := *e
			events = append(events, &copied)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].OccurredAt.Before(events[j].OccurredAt)
	})
	return events, nil
}

// ExistingPurchaseEventID returns the stored purchase event_id for the
// order, or "".
func (r *Repository) ExistingPurchaseEventID(_ context.Context, storeID, orderID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.events[storeID] {
		if e.IsPurchase() && e.OrderID == orderID {
			return e.EventID, nil
		}
	}
	return "", nil
}

// Clear removes all events for the store.
func (r *Repository) Clear(_ context.Context, storeID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := len(r.events[storeID])
	delete(r.events, storeID)
	return count, nil
}

// InitSchema is a no-op for the in-memory repository.
func (r *Repository) InitSchema(context.Context) error { return nil }

// Ping is a no-op for the in-memory repository.
func (r *Repository) Ping(context.Context) error { return nil }

// Close is a no-op for the in-memory repository.
func (r *Repository) Close() error { return nil }
