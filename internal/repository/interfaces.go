package repository

import (
	"context"
	"time"

	"github.com/BarkinBalci/attribution-engine/internal/domain"
)

// UpsertResult reports whether an upsert created a new row or replaced
// an existing one. Exactly one of the two is true on success.
type UpsertResult struct {
	Inserted bool
	Updated  bool
}

// EventRepository defines the interface for tracking event storage
type EventRepository interface {
	// Upsert stores the event keyed on (store_id, event_id). Re-ingesting
	// the same key updates the existing row instead of duplicating it.
	Upsert(ctx context.Context, event *domain.TrackingEvent) (UpsertResult, error)

	// FindScoredMatch returns the best prior touch sharing at least one
	// identity signal with the given set, scored by signal strength, or
	// nil when no touch shares a signal.
	FindScoredMatch(ctx context.Context, storeID string, signals domain.Signals, before time.Time) (*domain.AttributionMatch, error)

	// FindNearestInTime returns the touch temporally nearest to occurredAt
	// within the window, regardless of signal equality, or nil when the
	// window holds no touches. The result is always a modeled match.
	FindNearestInTime(ctx context.Context, storeID string, occurredAt time.Time, window time.Duration) (*domain.AttributionMatch, error)

	// EventsSince returns all events for the store that occurred at or
	// after since, ordered by occurred_at ascending.
	EventsSince(ctx context.Context, storeID string, since time.Time) ([]*domain.TrackingEvent, error)

	// ExistingPurchaseEventID returns the event_id of a previously
	// ingested purchase for the order, or "" when none exists.
	ExistingPurchaseEventID(ctx context.Context, storeID, orderID string) (string, error)

	// Clear removes all events for the store. Operator-triggered only.
	Clear(ctx context.Context, storeID string) (int, error)

	// InitSchema initializes the database schema (creates tables if they don't exist)
	InitSchema(ctx context.Context) error

	// Ping checks if the database connection is alive
	Ping(ctx context.Context) error

	// Close closes the repository and releases resources
	Close() error
}
