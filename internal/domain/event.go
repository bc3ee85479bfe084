package domain

import "time"

// Event names stored in the tracking_events table.
const (
	EventPurchase = "Purchase"
	EventRefund   = "Refund"
	EventPageView = "PageView"
	EventAdClick  = "AdClick"
)

// Event sources.
const (
	SourceBrowser = "browser"
	SourceServer  = "server"
	SourceShopify = "shopify"
)

// Attribution methods.
const (
	MethodDeterministic = "deterministic"
	MethodModeled       = "modeled"
)

// Attribution strategies for modeled matches.
const (
	StrategySignalMatch   = "signal_match"
	StrategyTimeProximity = "time_proximity"
)

// TrackingEvent represents a tracking event stored in ClickHouse.
// (store_id, event_id) is the idempotency key: re-ingesting the same
// event updates the existing row instead of inserting a duplicate.
type TrackingEvent struct {
	StoreID           string    `ch:"store_id"`
	EventID           string    `ch:"event_id"`
	EventName         string    `ch:"event_name"`
	Source            string    `ch:"source"`
	OccurredAt        time.Time `ch:"occurred_at"`
	SessionID         string    `ch:"session_id"`
	ClickID           string    `ch:"click_id"`
	FBC               string    `ch:"fbc"`
	FBP               string    `ch:"fbp"`
	EmailHash         string    `ch:"email_hash"`
	Value             float64   `ch:"value"`
	Currency          string    `ch:"currency"`
	OrderID           string    `ch:"order_id"`
	CampaignID        string    `ch:"campaign_id"`
	AdSetID           string    `ch:"adset_id"`
	AdID              string    `ch:"ad_id"`
	AttributionMethod string    `ch:"attribution_method"`
	Metadata          string    `ch:"metadata"`
	ProcessedAt       time.Time `ch:"processed_at"`
	Version           uint64    `ch:"version"`
}

// IsPurchase reports whether the event is a purchase.
func (e *TrackingEvent) IsPurchase() bool {
	return e.EventName == EventPurchase
}

// IsTouch reports whether the event is a pre-purchase interaction carrying
// at least one identity signal. Purchases and refunds are never touches.
func (e *TrackingEvent) IsTouch() bool {
	if e.EventName == EventPurchase || e.EventName == EventRefund {
		return false
	}
	return e.SessionID != "" || e.ClickID != "" || e.FBC != "" || e.FBP != "" || e.EmailHash != ""
}

// HasEntityIDs reports whether the event carries any ad-entity mapping.
func (e *TrackingEvent) HasEntityIDs() bool {
	return e.CampaignID != "" || e.AdSetID != "" || e.AdID != ""
}

// SharesSignal reports whether the event shares at least one identity
// signal with the given set. Used by the reporting pass, which matches
// on any overlapping signal rather than scored equality.
func (e *TrackingEvent) SharesSignal(other *TrackingEvent) bool {
	switch {
	case e.SessionID != "" && e.SessionID == other.SessionID:
		return true
	case e.ClickID != "" && e.ClickID == other.ClickID:
		return true
	case e.FBC != "" && e.FBC == other.FBC:
		return true
	case e.FBP != "" && e.FBP == other.FBP:
		return true
	case e.EmailHash != "" && e.EmailHash == other.EmailHash:
		return true
	}
	return false
}
