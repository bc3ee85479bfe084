package dto

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"store_id is required"`
}

// ClearEventsResponse reports an operator-triggered clear.
type ClearEventsResponse struct {
	StoreID string `json:"store_id" example:"store_123"`
	Deleted int    `json:"deleted" example:"1500"`
}
