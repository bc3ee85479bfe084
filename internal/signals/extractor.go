// Package signals parses raw commerce records into canonical identity
// signals and, when ad-platform URL tagging already substituted real
// entity IDs, extracts those directly.
package signals

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BarkinBalci/attribution-engine/internal/domain"
)

// Attribute is a note/custom attribute attached to an order.
type Attribute struct {
	Name  string
	Value string
}

// SourceRecord is the slice of a raw order/webhook record the extractor
// reads. All fields are optional; extraction degrades to empty signals.
type SourceRecord struct {
	LandingURL     string
	OrderStatusURL string
	ReferringURL   string
	Email          string
	NoteAttributes []Attribute
}

// Key aliases per signal. For note attributes the legacy names (no
// underscore prefix) are checked before the current ones.
var (
	clickIDKeys  = []string{"fbclid", "_fbclid"}
	fbcKeys      = []string{"fbc", "_fbc"}
	fbpKeys      = []string{"fbp", "_fbp"}
	campaignKeys = []string{"utm_campaign", "_utm_campaign"}
	mediumKeys   = []string{"utm_medium", "_utm_medium"}
	contentKeys  = []string{"utm_content", "_utm_content"}
)

// valueSource resolves a list of key aliases against one candidate
// location. The extractor evaluates sources in fixed priority order and
// the first non-empty hit per signal wins.
type valueSource func(keys []string) string

// sources returns the ordered location list: landing URL, order-status
// URL, referring URL, then note attributes.
func sources(rec SourceRecord) []valueSource {
	return []valueSource{
		queryLookup(rec.LandingURL),
		queryLookup(rec.OrderStatusURL),
		queryLookup(rec.ReferringURL),
		attributeLookup(rec.NoteAttributes),
	}
}

func firstHit(srcs []valueSource, keys []string) string {
	for _, src := range srcs {
		if v := src(keys); v != "" {
			return v
		}
	}
	return ""
}

// Extract parses the record into canonical signals. It never fails:
// malformed URLs and attributes degrade to empty fields. now is the
// ingestion time used when synthesizing an fbc from a bare click ID.
func Extract(rec SourceRecord, now time.Time) domain.Signals {
	srcs := sources(rec)

	sig := domain.Signals{
		ClickID:     firstHit(srcs, clickIDKeys),
		FBC:         firstHit(srcs, fbcKeys),
		FBP:         firstHit(srcs, fbpKeys),
		UTMCampaign: firstHit(srcs, campaignKeys),
		UTMMedium:   firstHit(srcs, mediumKeys),
		UTMContent:  firstHit(srcs, contentKeys),
		EmailHash:   HashEmail(rec.Email),
	}

	// A click ID without an explicit fbc still identifies the click;
	// synthesize the cookie form so stored touches set by the pixel can
	// match on it. The synthetic fbc is derivable from the click ID and
	// never treated as stronger evidence than the click ID itself.
	if sig.FBC == "" && sig.ClickID != "" {
		sig.FBC = fmt.Sprintf("fb.1.%d.%s", now.Unix(), sig.ClickID)
	}

	return sig
}

// HashEmail returns the SHA-256 of the lowercased, trimmed email, or the
// input unchanged (lowercased) when it is already a 64-char hex digest.
// Empty input yields empty output.
func HashEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	if isHex64(email) {
		return email
	}
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// queryLookup resolves keys against a URL's query string. Malformed
// encoding degrades to a raw space-normalized scan instead of failing.
func queryLookup(rawURL string) valueSource {
	var values url.Values
	var raw string

	if rawURL != "" {
		if u, err := url.Parse(rawURL); err == nil {
			raw = u.RawQuery
		} else if i := strings.Index(rawURL, "?"); i >= 0 {
			raw = rawURL[i+1:]
		}
		if raw != "" {
			if parsed, err := url.ParseQuery(raw); err == nil {
				values = parsed
			}
		}
	}

	return func(keys []string) string {
		for _, key := range keys {
			if values != nil {
				if v := values.Get(key); v != "" {
					return v
				}
				continue
			}
			if v := rawQueryValue(raw, key); v != "" {
				return v
			}
		}
		return ""
	}
}

// rawQueryValue scans an unparseable query string pair-by-pair. Values
// keep their raw bytes with '+' normalized to space.
func rawQueryValue(raw, key string) string {
	for _, pair := range strings.Split(raw, "&") {
		k, v, found := strings.Cut(pair, "=")
		if !found || k != key {
			continue
		}
		v = strings.ReplaceAll(v, "+", " ")
		if unescaped, err := url.QueryUnescape(v); err == nil {
			return unescaped
		}
		return v
	}
	return ""
}

// attributeLookup resolves keys against note/custom attributes,
// case-insensitively on the attribute name.
func attributeLookup(attrs []Attribute) valueSource {
	return func(keys []string) string {
		for _, key := range keys {
			for _, attr := range attrs {
				if strings.EqualFold(attr.Name, key) && attr.Value != "" {
					return attr.Value
				}
			}
		}
		return ""
	}
}
