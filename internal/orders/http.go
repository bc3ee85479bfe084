package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPFeed lists orders from the store's admin API. Retries, rate-limit
// backoff and token refresh belong to the upstream platform client; this
// feed performs a single attempt per page and lets the pipeline absorb
// failures into a partial run.
type HTTPFeed struct {
	creds  CredentialResolver
	client *http.Client
}

// NewHTTPFeed creates an order feed backed by the store admin API.
func NewHTTPFeed(creds CredentialResolver) *HTTPFeed {
	return &HTTPFeed{
		creds:  creds,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type ordersEnvelope struct {
	Orders []Order `json:"orders"`
}

// List fetches one page of orders created at or after createdAtMin with
// ID greater than sinceID.
func (f *HTTPFeed) List(ctx context.Context, storeID string, sinceID int64, createdAtMin time.Time, limit int) ([]Order, error) {
	cred, err := f.creds.Resolve(ctx, storeID)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("status", "any")
	query.Set("limit", strconv.Itoa(limit))
	query.Set("created_at_min", createdAtMin.UTC().Format(time.RFC3339))
	if sinceID > 0 {
		query.Set("since_id", strconv.FormatInt(sinceID, 10))
	}

	endpoint := fmt.Sprintf("https://%s/admin/api/2024-01/orders.json?%s", cred.Domain, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build orders request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", cred.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orders request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrNoCredential
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("orders request returned status %d", resp.StatusCode)
	}

	var envelope ordersEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode orders response: %w", err)
	}

	return envelope.Orders, nil
}
