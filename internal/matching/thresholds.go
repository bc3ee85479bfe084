package matching

import "github.com/BarkinBalci/attribution-engine/internal/domain"

// Thresholds is the versioned acceptance configuration for scored
// matches. The values are hand-tuned for high coverage without spurious
// matches; changing them is a scoring-version change, not a tweak.
type Thresholds struct {
	Version    string
	ClickID    float64
	FBC        float64
	FBPOrEmail float64
	Floor      float64
}

// ThresholdsVersion identifies the current tuning. Deployments that
// override individual thresholds still report this version.
const ThresholdsVersion = "2024-06"

// DefaultThresholds returns the current tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Version:    ThresholdsVersion,
		ClickID:    0.20,
		FBC:        0.22,
		FBPOrEmail: 0.28,
		Floor:      0.25,
	}
}

// Accept decides whether a scored match clears the acceptance bar. The
// bar depends on the strongest matched signal; a match with no matched
// signals is rejected regardless of score.
func (t Thresholds) Accept(m *domain.AttributionMatch) bool {
	if m == nil || len(m.MatchedSignals) == 0 {
		return false
	}

	min := t.Floor
	switch {
	case containsSignal(m.MatchedSignals, SignalClickID):
		min = t.ClickID
	case containsSignal(m.MatchedSignals, SignalFBC):
		min = t.FBC
	case containsSignal(m.MatchedSignals, SignalFBP) || containsSignal(m.MatchedSignals, SignalEmailHash):
		min = t.FBPOrEmail
	}

	return m.Confidence >= min
}

func containsSignal(signals []string, name string) bool {
	for _, s := range signals {
		if s == name {
			return true
		}
	}
	return false
}
