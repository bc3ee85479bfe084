package domain

import "time"

// Signals holds the canonical identity signals extracted from a raw
// commerce record. Empty string means the signal was absent.
type Signals struct {
	ClickID     string
	FBC         string
	FBP         string
	EmailHash   string
	UTMCampaign string
	UTMMedium   string
	UTMContent  string
}

// HasIdentity reports whether at least one matchable identity signal is
// present. UTM fields are names, not identity, and do not count.
func (s Signals) HasIdentity() bool {
	return s.ClickID != "" || s.FBC != "" || s.FBP != "" || s.EmailHash != ""
}

// EntityIDs holds the ad-platform entity mapping for an attribution.
// Empty string means the ID is still unresolved.
type EntityIDs struct {
	CampaignID string
	AdSetID    string
	AdID       string
}

// Complete reports whether all three entity levels are resolved.
func (ids EntityIDs) Complete() bool {
	return ids.CampaignID != "" && ids.AdSetID != "" && ids.AdID != ""
}

// Empty reports whether no entity level is resolved.
func (ids EntityIDs) Empty() bool {
	return ids.CampaignID == "" && ids.AdSetID == "" && ids.AdID == ""
}

// Merge fills the missing fields of ids from other without overwriting
// anything already resolved.
func (ids EntityIDs) Merge(other EntityIDs) EntityIDs {
	if ids.CampaignID == "" {
		ids.CampaignID = other.CampaignID
	}
	if ids.AdSetID == "" {
		ids.AdSetID = other.AdSetID
	}
	if ids.AdID == "" {
		ids.AdID = other.AdID
	}
	return ids
}

// AttributionMatch is the ephemeral result of matching a purchase against
// stored touches. It is never persisted; the pipeline folds the entity IDs
// and method into the purchase TrackingEvent.
type AttributionMatch struct {
	CampaignID     string
	AdSetID        string
	AdID           string
	Confidence     float64
	Score          float64
	MatchedSignals []string
	MatchedAt      time.Time
	Source         string
	AgeHours       float64
	Strategy       string
}

// EntityIDs returns the match's entity mapping.
func (m *AttributionMatch) EntityIDs() EntityIDs {
	return EntityIDs{CampaignID: m.CampaignID, AdSetID: m.AdSetID, AdID: m.AdID}
}
