package matching

import (
	"time"

	"github.com/BarkinBalci/attribution-engine/internal/domain"
)

// Signal names reported in AttributionMatch.MatchedSignals.
const (
	SignalClickID   = "click_id"
	SignalFBC       = "fbc"
	SignalFBP       = "fbp"
	SignalEmailHash = "email_hash"
)

// Signal weights. click_id is the strongest evidence, fbc next; fbp and
// email_hash can span multiple unrelated sessions and score lowest.
const (
	weightClickID   = 0.40
	weightFBC       = 0.35
	weightFBP       = 0.28
	weightEmailHash = 0.28
)

// matchedSignals returns the signals shared between a stored touch and
// the purchase signal set, with the summed raw score.
func matchedSignals(touch *domain.TrackingEvent, sig domain.Signals) ([]string, float64) {
	var matched []string
	var score float64

	if sig.ClickID != "" && sig.ClickID == touch.ClickID {
		matched = append(matched, SignalClickID)
		score += weightClickID
	}
	if sig.FBC != "" && sig.FBC == touch.FBC {
		matched = append(matched, SignalFBC)
		score += weightFBC
	}
	if sig.FBP != "" && sig.FBP == touch.FBP {
		matched = append(matched, SignalFBP)
		score += weightFBP
	}
	if sig.EmailHash != "" && sig.EmailHash == touch.EmailHash {
		matched = append(matched, SignalEmailHash)
		score += weightEmailHash
	}

	if score > 1.0 {
		score = 1.0
	}
	return matched, score
}

// recencyFactor discounts older touches.
func recencyFactor(age time.Duration) float64 {
	switch {
	case age <= 24*time.Hour:
		return 1.0
	case age <= 72*time.Hour:
		return 0.85
	case age <= 168*time.Hour:
		return 0.70
	default:
		return 0.50
	}
}

// ScoreTouch scores a single candidate touch against the purchase signals
// as observed at the given time. Returns nil when no signal is shared.
func ScoreTouch(touch *domain.TrackingEvent, sig domain.Signals, at time.Time) *domain.AttributionMatch {
	matched, score := matchedSignals(touch, sig)
	if len(matched) == 0 {
		return nil
	}

	age := at.Sub(touch.OccurredAt)
	if age < 0 {
		age = 0
	}

	return &domain.AttributionMatch{
		CampaignID:     touch.CampaignID,
		AdSetID:        touch.AdSetID,
		AdID:           touch.AdID,
		Confidence:     score * recencyFactor(age),
		Score:          score,
		MatchedSignals: matched,
		MatchedAt:      touch.OccurredAt,
		Source:         touch.Source,
		AgeHours:       age.Hours(),
		Strategy:       domain.StrategySignalMatch,
	}
}

// BestCandidate scores every candidate touch and returns the strongest
// match, or nil when none shares a signal. Ties on confidence go to the
// more recent touch.
func BestCandidate(candidates []*domain.TrackingEvent, sig domain.Signals, at time.Time) *domain.AttributionMatch {
	var best *domain.AttributionMatch
	for _, touch := range candidates {
		m := ScoreTouch(touch, sig, at)
		if m == nil {
			continue
		}
		if best == nil || m.Confidence > best.Confidence ||
			(m.Confidence == best.Confidence && m.MatchedAt.After(best.MatchedAt)) {
			best = m
		}
	}
	return best
}

// ProximityMatch builds a time_proximity match from the touch nearest to
// occurredAt. Such matches carry no matched signals and are always
// classified as modeled. Confidence shrinks linearly with distance.
func ProximityMatch(touch *domain.TrackingEvent, occurredAt time.Time, window time.Duration) *domain.AttributionMatch {
	age := occurredAt.Sub(touch.OccurredAt)
	if age < 0 {
		age = 0
	}

	confidence := 0.05
	if window > 0 && age < window {
		confidence = 0.05 + 0.25*(1-age.Seconds()/window.Seconds())
	}

	return &domain.AttributionMatch{
		CampaignID: touch.CampaignID,
		AdSetID:    touch.AdSetID,
		AdID:       touch.AdID,
		Confidence: confidence,
		MatchedAt:  touch.OccurredAt,
		Source:     touch.Source,
		AgeHours:   age.Hours(),
		Strategy:   domain.StrategyTimeProximity,
	}
}
