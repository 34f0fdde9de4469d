package dto

import "github.com/shopspring/decimal"

type CreateTankRequest struct {
	Name     string          `json:"name" validate:"required"`
	Capacity decimal.Decimal `json:"capacity" validate:"required,gt=0"`
}

type UpdateTankRequest struct {
	Name     *string          `json:"name,omitempty"`
	Capacity *decimal.Decimal `json:"capacity,omitempty"`
}

type TankResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Capacity     decimal.Decimal `json:"capacity"`
	Status       string          `json:"status"`
	CurrentLotID *string         `json:"current_lot_id,omitempty"`
	CurrentPhase *string         `json:"current_phase,omitempty"`
	ActiveVolume decimal.Decimal `json:"active_volume"`
	CurrentLot   *string         `json:"current_lot_code,omitempty"`
}

// TankFilter is bound from the query string of GET /v1/tanks.
type TankFilter struct {
	Status string `form:"status"` // available | occupied | needs_cleaning | all
	Page   int    `form:"page,default=1" validate:"min=1"`
	Limit  int    `form:"limit,default=50" validate:"min=1,max=200"`
}
