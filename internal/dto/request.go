package dto

// BackfillRequest represents a backfill invocation request. Days
// defaults to 7; values above the maximum window are clamped.
type BackfillRequest struct {
	StoreID string `json:"store_id" binding:"required" example:"store_123"`
	Days    int    `json:"days" binding:"omitempty,gte=0" example:"7"`
}

// ReportRequest represents an attribution report query.
type ReportRequest struct {
	StoreID string `form:"store_id" binding:"required" example:"store_123"`
	Window  int    `form:"window" example:"7"`
}
