package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateBatchRequest starts a new production run: it creates the batch, its
// initial fermentation lot, and an active assignment on the chosen tank.
type CreateBatchRequest struct {
	Code          string          `json:"code" validate:"required"`
	RecipeName    string          `json:"recipe_name" validate:"required"`
	PlannedVolume decimal.Decimal `json:"planned_volume" validate:"required,gt=0"`
	TankID        string          `json:"tank_id" validate:"required,uuid4"`
	PlannedStart  time.Time       `json:"planned_start" validate:"required"`
	PlannedEnd    time.Time       `json:"planned_end"`
}

type BatchResponse struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	RecipeName    string          `json:"recipe_name"`
	Status        string          `json:"status"`
	PlannedVolume decimal.Decimal `json:"planned_volume"`
	BrewedAt      string          `json:"brewed_at"`
	Lots          []LotLinkItem   `json:"lots,omitempty"`
}

// LotLinkItem is one LotBatch row surfaced in batch/lot detail responses.
type LotLinkItem struct {
	LotID      string          `json:"lot_id"`
	LotCode    string          `json:"lot_code"`
	Phase      string          `json:"phase"`
	Volume     decimal.Decimal `json:"volume"`
	Percentage decimal.Decimal `json:"percentage"`
}

// BatchFilter is bound from the query string of GET /v1/batches.
type BatchFilter struct {
	Status string `form:"status"` // fermenting | conditioning | all
	Page   int    `form:"page,default=1" validate:"min=1"`
	Limit  int    `form:"limit,default=50" validate:"min=1,max=200"`
}

// ReportRequest asks for the batch movement report to be generated and mailed.
type ReportRequest struct {
	ToEmail string `json:"to_email" validate:"omitempty,email"`
}

type BatchListResponse struct {
	Data  []BatchResponse `json:"data"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}
