package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BarkinBalci/attribution-engine/internal/orders"
	"github.com/BarkinBalci/attribution-engine/internal/pipeline"
	"github.com/BarkinBalci/attribution-engine/internal/reporting"
	"github.com/BarkinBalci/attribution-engine/internal/repository"
)

// ErrInvalidInput marks validation failures the handler maps to 400.
var ErrInvalidInput = errors.New("invalid input")

// Backfill window bounds. Zero days selects the default; out-of-range
// positive values are clamped rather than rejected so operator cron
// configs cannot silently break on a limit change.
const (
	DefaultBackfillDays = 7
	MaxBackfillDays     = 30
)

var reportWindows = map[int]bool{1: true, 7: true, 28: true}

// BackfillRunner runs the ingestion pipeline for one store.
type BackfillRunner interface {
	Run(ctx context.Context, storeID string, days int) (*pipeline.Summary, error)
}

// ReportBuilder produces the windowed attribution report.
type ReportBuilder interface {
	Report(ctx context.Context, storeID string, windowDays int) (*reporting.Report, error)
}

// AttributionService orchestrates backfill runs and report reads.
type AttributionService struct {
	backfill   BackfillRunner
	aggregator ReportBuilder
	creds      orders.CredentialResolver
	repo       repository.EventRepository
	log        *zap.Logger
}

// NewAttributionService creates the service.
func NewAttributionService(backfill BackfillRunner, aggregator ReportBuilder, creds orders.CredentialResolver, repo repository.EventRepository, log *zap.Logger) *AttributionService {
	return &AttributionService{
		backfill:   backfill,
		aggregator: aggregator,
		creds:      creds,
		repo:       repo,
		log:        log,
	}
}

// RunBackfill validates input, resolves the store credential, and runs
// the ingestion pipeline. Returns orders.ErrNoCredential when the store
// has no usable upstream connection.
func (s *AttributionService) RunBackfill(ctx context.Context, storeID string, days int) (*pipeline.Summary, error) {
	if storeID == "" {
		return nil, fmt.Errorf("%w: store_id is required", ErrInvalidInput)
	}
	if days < 0 {
		return nil, fmt.Errorf("%w: days must be positive", ErrInvalidInput)
	}
	if days == 0 {
		days = DefaultBackfillDays
	}
	if days > MaxBackfillDays {
		s.log.Warn("Clamping backfill window",
			zap.String("store_id", storeID),
			zap.Int("requested_days", days),
			zap.Int("max_days", MaxBackfillDays))
		days = MaxBackfillDays
	}

	cred, err := s.creds.Resolve(ctx, storeID)
	if err != nil {
		if errors.Is(err, orders.ErrNoCredential) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve store credential: %w", err)
	}

	summary, err := s.backfill.Run(ctx, storeID, days)
	if err != nil {
		return nil, fmt.Errorf("backfill run failed: %w", err)
	}
	summary.Domain = cred.Domain

	return summary, nil
}

// GetReport validates input and produces the windowed report.
func (s *AttributionService) GetReport(ctx context.Context, storeID string, windowDays int) (*reporting.Report, error) {
	if storeID == "" {
		return nil, fmt.Errorf("%w: store_id is required", ErrInvalidInput)
	}
	if windowDays == 0 {
		windowDays = DefaultBackfillDays
	}
	if !reportWindows[windowDays] {
		return nil, fmt.Errorf("%w: window must be 1, 7 or 28 days", ErrInvalidInput)
	}

	report, err := s.aggregator.Report(ctx, storeID, windowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to build report: %w", err)
	}
	return report, nil
}

// ClearEvents removes all stored events for a store. Operator-triggered
// only; ingestion never deletes.
func (s *AttributionService) ClearEvents(ctx context.Context, storeID string) (int, error) {
	if storeID == "" {
		return 0, fmt.Errorf("%w: store_id is required", ErrInvalidInput)
	}

	deleted, err := s.repo.Clear(ctx, storeID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear events: %w", err)
	}

	s.log.Info("Events cleared",
		zap.String("store_id", storeID),
		zap.Int("deleted", deleted))
	return deleted, nil
}
