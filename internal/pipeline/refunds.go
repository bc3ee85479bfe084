package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/attribution-engine/internal/domain"
	"github.com/BarkinBalci/attribution-engine/internal/orders"
)

const financialStatusRefunded = "refunded"

// emitRefunds emits one Refund event per qualifying refund record. When
// the order's financial status says refunded and no explicit refund
// record exists at all, a single full refund is implied from the order
// total. Zero and negative amounts are dropped; an order whose refund
// records all resolve to non-positive amounts emits nothing.
func (b *Backfill) emitRefunds(ctx context.Context, storeID string, order orders.Order, purchase *domain.TrackingEvent, summary *Summary) {
	for _, refund := range order.Refunds {
		amount := refundAmount(refund)
		if amount <= 0 {
			continue
		}

		occurredAt := refund.CreatedAt
		if occurredAt.IsZero() {
			occurredAt = order.CreatedAt
		}

		eventID := "shopify_refund_" + strconv.FormatInt(refund.ID, 10)
		b.upsertRefund(ctx, storeID, eventID, amount, occurredAt, purchase, summary)
	}

	if len(order.Refunds) == 0 && order.FinancialStatus == financialStatusRefunded {
		amount := orders.ParseAmount(order.TotalPrice)
		if amount <= 0 {
			return
		}
		occurredAt := order.UpdatedAt
		if occurredAt.IsZero() {
			occurredAt = order.CreatedAt
		}
		eventID := fmt.Sprintf("shopify_order_%d_refund_%d", order.ID, 0)
		b.upsertRefund(ctx, storeID, eventID, amount, occurredAt, purchase, summary)
	}
}

func (b *Backfill) upsertRefund(ctx context.Context, storeID, eventID string, amount float64, occurredAt time.Time, purchase *domain.TrackingEvent, summary *Summary) {
	event := &domain.TrackingEvent{
		StoreID:           storeID,
		EventID:           eventID,
		EventName:         domain.EventRefund,
		Source:            domain.SourceShopify,
		OccurredAt:        occurredAt,
		ClickID:           purchase.ClickID,
		FBC:               purchase.FBC,
		FBP:               purchase.FBP,
		EmailHash:         purchase.EmailHash,
		Value:             amount,
		Currency:          purchase.Currency,
		OrderID:           purchase.OrderID,
		CampaignID:        purchase.CampaignID,
		AdSetID:           purchase.AdSetID,
		AdID:              purchase.AdID,
		AttributionMethod: purchase.AttributionMethod,
		Metadata:          purchase.Metadata,
	}

	result, err := b.repo.Upsert(ctx, event)
	if err != nil {
		b.log.Error("Failed to upsert refund event",
			zap.Error(err),
			zap.String("store_id", storeID),
			zap.String("event_id", eventID))
		return
	}

	countUpsert(summary, result, event)
	summary.RefundsEmitted++
}

// refundAmount resolves a refund's amount: transactions explicitly
// tagged "refund" take precedence; line-item subtotals are the fallback.
func refundAmount(refund orders.Refund) float64 {
	var total float64
	for _, tx := range refund.Transactions {
		if tx.Kind == "refund" {
			total += orders.ParseAmount(tx.Amount)
		}
	}
	if total > 0 {
		return total
	}

	total = 0
	for _, item := range refund.RefundLineItems {
		total += orders.ParseAmount(item.Subtotal)
	}
	return total
}
