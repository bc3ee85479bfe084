package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/BarkinBalci/attribution-engine/internal/domain"
	"github.com/BarkinBalci/attribution-engine/internal/matching"
	"github.com/BarkinBalci/attribution-engine/internal/repository"
)

// scoredCandidateLimit bounds how many recent signal-sharing touches are
// pulled for scoring. Guest checkouts rarely accumulate more.
const scoredCandidateLimit = 50

const eventColumns = `store_id, event_id, event_name, source, occurred_at,
	session_id, click_id, fbc, fbp, email_hash, value, currency, order_id,
	campaign_id, adset_id, ad_id, attribution_method, metadata, processed_at, version`

// Repository implements EventRepository for ClickHouse
type Repository struct {
	client *Client
	log    *zap.Logger
}

// NewRepository creates a new ClickHouse repository
func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{
		client: client,
		log:    log,
	}
}

// InitSchema initializes the ClickHouse schema with ReplacingMergeTree engine.
// (store_id, event_id) is the replacement key; the highest version wins,
// which gives upsert semantics for re-ingested events.
func (r *Repository) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS tracking_events (
		store_id String,
		event_id String,
		event_name LowCardinality(String),
		source LowCardinality(String),
		occurred_at DateTime64(3),
		session_id String,
		click_id String,
		fbc String,
		fbp String,
		email_hash String,
		value Float64,
		currency LowCardinality(String),
		order_id String,
		campaign_id String,
		adset_id String,
		ad_id String,
		attribution_method LowCardinality(String),
		metadata String,
		processed_at DateTime64(3) DEFAULT now64(3),
		version UInt64
	) ENGINE = ReplacingMergeTree(version)
	PRIMARY KEY (store_id, event_id)
	ORDER BY (store_id, event_id)
	PARTITION BY toYYYYMM(occurred_at)
	SETTINGS index_granularity = 8192
	`

	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create tracking_events table: %w", err)
	}

	r.log.Info("ClickHouse schema initialized successfully")
	return nil
}

// Upsert stores the event keyed on (store_id, event_id). A point lookup
// decides inserted vs updated; the versioned insert makes the newest row
// win on merge either way.
func (r *Repository) Upsert(ctx context.Context, event *domain.TrackingEvent) (repository.UpsertResult, error) {
	var count uint64
	row := r.client.Conn().QueryRow(ctx,
		`SELECT count() FROM tracking_events FINAL WHERE store_id = ? AND event_id = ?`,
		event.StoreID, event.EventID)
	if err := row.Scan(&count); err != nil {
		return repository.UpsertResult{}, fmt.Errorf("failed to check existing event: %w", err)
	}

	if event.Version == 0 {
		event.Version = uint64(time.Now().UnixNano())
	}
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}
	metadata := event.Metadata
	if metadata == "" {
		metadata = "{}"
	}

	err := r.client.Conn().Exec(ctx,
		fmt.Sprintf(`INSERT INTO tracking_events (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, eventColumns),
		event.StoreID,
		event.EventID,
		event.EventName,
		event.Source,
		event.OccurredAt,
		event.SessionID,
		event.ClickID,
		event.FBC,
		event.FBP,
		event.EmailHash,
		event.Value,
		event.Currency,
		event.OrderID,
		event.CampaignID,
		event.AdSetID,
		event.AdID,
		event.AttributionMethod,
		metadata,
		event.ProcessedAt,
		event.Version,
	)
	if err != nil {
		return repository.UpsertResult{}, fmt.Errorf("failed to insert event: %w", err)
	}

	if count > 0 {
		return repository.UpsertResult{Updated: true}, nil
	}
	return repository.UpsertResult{Inserted: true}, nil
}

// FindScoredMatch pulls recent touches sharing at least one signal and
// scores them in-process; ClickHouse does the candidate narrowing, the
// matching package owns the confidence arithmetic.
func (r *Repository) FindScoredMatch(ctx context.Context, storeID string, sig domain.Signals, before time.Time) (*domain.AttributionMatch, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tracking_events FINAL
		WHERE store_id = ?
		  AND event_name NOT IN ('Purchase', 'Refund')
		  AND occurred_at <= ?
		  AND ((click_id != '' AND click_id = ?)
		    OR (fbc != '' AND fbc = ?)
		    OR (fbp != '' AND fbp = ?)
		    OR (email_hash != '' AND email_hash = ?))
		ORDER BY occurred_at DESC
		LIMIT %d
	`, eventColumns, scoredCandidateLimit)

	candidates, err := r.queryEvents(ctx, query,
		storeID, before, sig.ClickID, sig.FBC, sig.FBP, sig.EmailHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query scored candidates: %w", err)
	}

	return matching.BestCandidate(candidates, sig, before), nil
}

// FindNearestInTime returns the touch closest to occurredAt within the
// window, ignoring signal equality.
func (r *Repository) FindNearestInTime(ctx context.Context, storeID string, occurredAt time.Time, window time.Duration) (*domain.AttributionMatch, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tracking_events FINAL
		WHERE store_id = ?
		  AND event_name NOT IN ('Purchase', 'Refund')
		  AND occurred_at <= ?
		  AND occurred_at >= ?
		  AND (session_id != '' OR click_id != '' OR fbc != '' OR fbp != '' OR email_hash != '')
		ORDER BY occurred_at DESC
		LIMIT 1
	`, eventColumns)

	touches, err := r.queryEvents(ctx, query, storeID, occurredAt, occurredAt.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest touch: %w", err)
	}
	if len(touches) == 0 {
		return nil, nil
	}

	return matching.ProximityMatch(touches[0], occurredAt, window), nil
}

// EventsSince returns the store's events at or after since, oldest first.
func (r *Repository) EventsSince(ctx context.Context, storeID string, since time.Time) ([]*domain.TrackingEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tracking_events FINAL
		WHERE store_id = ? AND occurred_at >= ?
		ORDER BY occurred_at ASC
	`, eventColumns)

	events, err := r.queryEvents(ctx, query, storeID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query events since %s: %w", since.Format(time.RFC3339), err)
	}
	return events, nil
}

// ExistingPurchaseEventID returns the event_id previously stored for the
// order's purchase, or "" when the order was never ingested.
func (r *Repository) ExistingPurchaseEventID(ctx context.Context, storeID, orderID string) (string, error) {
	rows, err := r.client.Conn().Query(ctx,
		`SELECT event_id FROM tracking_events FINAL
		 WHERE store_id = ? AND order_id = ? AND event_name = 'Purchase'
		 LIMIT 1`,
		storeID, orderID)
	if err != nil {
		return "", fmt.Errorf("failed to query existing purchase event: %w", err)
	}
	defer r.closeRows(rows)

	if !rows.Next() {
		return "", rows.Err()
	}
	var eventID string
	if err := rows.Scan(&eventID); err != nil {
		return "", fmt.Errorf("failed to scan existing purchase event: %w", err)
	}
	return eventID, nil
}

// Clear removes all events for the store via a mutation. Counts first so
// the caller can report what was deleted.
func (r *Repository) Clear(ctx context.Context, storeID string) (int, error) {
	var count uint64
	row := r.client.Conn().QueryRow(ctx,
		`SELECT count() FROM tracking_events FINAL WHERE store_id = ?`, storeID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events for clear: %w", err)
	}

	if err := r.client.Conn().Exec(ctx,
		`ALTER TABLE tracking_events DELETE WHERE store_id = ?`, storeID); err != nil {
		return 0, fmt.Errorf("failed to clear events: %w", err)
	}

	r.log.Info("Cleared tracking events",
		zap.String("store_id", storeID),
		zap.Uint64("deleted", count))
	return int(count), nil
}

// Ping checks if the ClickHouse connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Conn().Ping(ctx)
}

// Close closes the ClickHouse connection
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*domain.TrackingEvent, error) {
	rows, err := r.client.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer r.closeRows(rows)

	var events []*domain.TrackingEvent
	for rows.Next() {
		var e domain.TrackingEvent
		if err := rows.Scan(
			&e.StoreID,
			&e.EventID,
			&e.EventName,
			&e.Source,
			&e.OccurredAt,
			&e.SessionID,
			&e.ClickID,
			&e.FBC,
			&e.FBP,
			&e.EmailHash,
			&e.Value,
			&e.Currency,
			&e.OrderID,
			&e.CampaignID,
			&e.AdSetID,
			&e.AdID,
			&e.AttributionMethod,
			&e.Metadata,
			&e.ProcessedAt,
			&e.Version,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

func (r *Repository) closeRows(rows driver.Rows) {
	if err := rows.Close(); err != nil {
		r.log.Error("Failed to close rows", zap.Error(err))
	}
}
