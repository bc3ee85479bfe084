package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/BarkinBalci/attribution-engine/internal/dto"
	"github.com/BarkinBalci/attribution-engine/internal/orders"
	"github.com/BarkinBalci/attribution-engine/internal/repository"
	"github.com/BarkinBalci/attribution-engine/internal/service"
)

// Pinger checks liveness of a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	attributionService service.AttributionServicer
	repo               repository.EventRepository
	taxonomy           Pinger
	router             *gin.Engine
	log                *zap.Logger
}

// NewHandler creates the HTTP handler. taxonomy may be nil when no
// taxonomy index is configured.
func NewHandler(attributionService service.AttributionServicer, repo repository.EventRepository, taxonomy Pinger, log *zap.Logger) *Handler {
	h := &Handler{
		attributionService: attributionService,
		repo:               repo,
		taxonomy:           taxonomy,
		router:             gin.Default(),
		log:                log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.POST("/backfill", h.runBackfill)
	h.router.GET("/report", h.getReport)
	h.router.DELETE("/events/:store_id", h.clearEvents)
}

// healthCheck handles health check requests. An unreachable event store
// is a hard failure; an unreachable taxonomy index only degrades UTM
// resolution, so the service stays up and reports it.
func (h *Handler) healthCheck(c *gin.Context) {
	if err := h.repo.Ping(c.Request.Context()); err != nil {
		h.log.Error("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
		})
		return
	}

	if h.taxonomy != nil {
		if err := h.taxonomy.Ping(c.Request.Context()); err != nil {
			h.log.Warn("Taxonomy index unreachable", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{
				"status":   "degraded",
				"taxonomy": "unavailable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// runBackfill handles POST /backfill. A partially completed run still
// returns 200 with the partial summary; only invalid input and missing
// credentials are errors.
func (h *Handler) runBackfill(c *gin.Context) {
	var req dto.BackfillRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid backfill request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	summary, err := h.attributionService.RunBackfill(c.Request.Context(), req.StoreID, req.Days)
	if err != nil {
		h.respondError(c, err, "backfill", req.StoreID)
		return
	}

	h.log.Info("Backfill completed",
		zap.String("run_id", summary.RunID),
		zap.String("store_id", summary.StoreID),
		zap.Int("orders", summary.OrdersScanned),
		zap.Bool("partial", summary.Partial))

	c.JSON(http.StatusOK, summary)
}

// getReport handles GET /report
func (h *Handler) getReport(c *gin.Context) {
	var req dto.ReportRequest

	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Warn("Invalid report request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	report, err := h.attributionService.GetReport(c.Request.Context(), req.StoreID, req.Window)
	if err != nil {
		h.respondError(c, err, "report", req.StoreID)
		return
	}

	c.JSON(http.StatusOK, report)
}

// clearEvents handles DELETE /events/:store_id
func (h *Handler) clearEvents(c *gin.Context) {
	storeID := c.Param("store_id")

	deleted, err := h.attributionService.ClearEvents(c.Request.Context(), storeID)
	if err != nil {
		h.respondError(c, err, "clear", storeID)
		return
	}

	c.JSON(http.StatusOK, dto.ClearEventsResponse{
		StoreID: storeID,
		Deleted: deleted,
	})
}

func (h *Handler) respondError(c *gin.Context, err error, operation, storeID string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		h.log.Warn("Validation failed",
			zap.Error(err),
			zap.String("operation", operation),
			zap.String("store_id", storeID))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	case errors.Is(err, orders.ErrNoCredential):
		h.log.Warn("No upstream credential",
			zap.String("operation", operation),
			zap.String("store_id", storeID))
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error:   "auth_error",
			Message: err.Error(),
		})
	default:
		h.log.Error("Operation failed",
			zap.Error(err),
			zap.String("operation", operation),
			zap.String("store_id", storeID))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
	}
}
