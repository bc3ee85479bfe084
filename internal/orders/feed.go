// Package orders defines the boundary contract with the upstream order
// feed. The HTTP client, its retries and rate limiting live outside the
// engine; the pipeline depends only on these types and interfaces.
package orders

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNoCredential indicates the store has no valid upstream credential.
var ErrNoCredential = errors.New("no valid upstream credential for store")

// NoteAttribute is a key/value attribute attached to an order at checkout.
type NoteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Transaction is a money movement attached to a refund.
type Transaction struct {
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Amount string `json:"amount"`
}

// RefundLineItem is a refunded order line.
type RefundLineItem struct {
	Subtotal string `json:"subtotal"`
}

// Refund is a refund record nested in an order.
type Refund struct {
	ID              int64            `json:"id"`
	CreatedAt       time.Time        `json:"created_at"`
	Transactions    []Transaction    `json:"transactions"`
	RefundLineItems []RefundLineItem `json:"refund_line_items"`
}

// Order is the upstream order record. Money fields arrive as strings.
type Order struct {
	ID              int64           `json:"id"`
	Email           string          `json:"email"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	TotalPrice      string          `json:"total_price"`
	Currency        string          `json:"currency"`
	FinancialStatus string          `json:"financial_status"`
	LandingSite     string          `json:"landing_site"`
	ReferringSite   string          `json:"referring_site"`
	OrderStatusURL  string          `json:"order_status_url"`
	NoteAttributes  []NoteAttribute `json:"note_attributes"`
	Refunds         []Refund        `json:"refunds"`
}

// Feed lists a store's orders page by page. sinceID is an exclusive
// lower bound on order ID (cursor pagination); createdAtMin bounds the
// trailing window; limit is the page size.
type Feed interface {
	List(ctx context.Context, storeID string, sinceID int64, createdAtMin time.Time, limit int) ([]Order, error)
}

// Credential identifies a store's upstream connection.
type Credential struct {
	StoreID string `json:"store_id"`
	Domain  string `json:"domain"`
	Token   string `json:"token"`
}

// CredentialResolver resolves a store's upstream credential. Returns
// ErrNoCredential when the store has no usable connection.
type CredentialResolver interface {
	Resolve(ctx context.Context, storeID string) (Credential, error)
}

// ParseAmount parses an upstream money string. Malformed input degrades
// to zero; amounts are best-effort like every other upstream field.
func ParseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
