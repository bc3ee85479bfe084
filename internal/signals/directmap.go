package signals

import "github.com/BarkinBalci/attribution-engine/internal/domain"

// Entity-ID key aliases. Ad-platform URL tagging substitutes real IDs
// into these parameters at click time; checkout apps copy them into note
// attributes under the underscore-prefixed names.
var (
	campaignIDKeys = []string{"campaign_id", "_campaign_id", "utm_id"}
	adSetIDKeys    = []string{"adset_id", "_adset_id"}
	adIDKeys       = []string{"ad_id", "_ad_id"}
)

// MapEntityIDs extracts campaign/adset/ad IDs already embedded in the
// record's URLs or attributes, using the same prioritized location scan
// as signal extraction. IDs found this way come from the ad platform's
// own tagging and are authoritative; non-numeric values are template
// placeholders left unsubstituted and are discarded.
func MapEntityIDs(rec SourceRecord) domain.EntityIDs {
	srcs := sources(rec)

	return domain.EntityIDs{
		CampaignID: numericID(firstHit(srcs, campaignIDKeys)),
		AdSetID:    numericID(firstHit(srcs, adSetIDKeys)),
		AdID:       numericID(firstHit(srcs, adIDKeys)),
	}
}

func numericID(s string) string {
	if s == "" {
		return ""
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return s
}
