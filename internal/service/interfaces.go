package service

import (
	"context"

	"github.com/BarkinBalci/attribution-engine/internal/pipeline"
	"github.com/BarkinBalci/attribution-engine/internal/reporting"
)

// AttributionServicer defines the interface for attribution operations
type AttributionServicer interface {
	RunBackfill(ctx context.Context, storeID string, days int) (*pipeline.Summary, error)
	GetReport(ctx context.Context, storeID string, windowDays int) (*reporting.Report, error)
	ClearEvents(ctx context.Context, storeID string) (int, error)
}
