package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// AllocationRequest is one destination tank + volume pair. One entry means a
// direct transfer; multiple entries with is_split mean a split.
type AllocationRequest struct {
	TankID string          `json:"tank_id" validate:"required,uuid4"`
	Volume decimal.Decimal `json:"volume" validate:"required,gt=0"`
}

// TransitionRequest is the engine's input. The three mode flags are not
// mutually exclusive on the wire; precedence (stay-in-tank → blend →
// transfer/split) is part of the contract, and contradictory combinations are
// rejected outright.
type TransitionRequest struct {
	BatchID     string  `json:"batch_id" validate:"required,uuid4"`
	SourceLotID *string `json:"source_lot_id,omitempty" validate:"omitempty,uuid4"`
	// SourceTankID narrows keep_same_tank to one tank when the source lot
	// ferments in several.
	SourceTankID *string             `json:"source_tank_id,omitempty" validate:"omitempty,uuid4"`
	Allocations  []AllocationRequest `json:"allocations" validate:"dive"`
	PlannedStart time.Time           `json:"planned_start" validate:"required"`
	PlannedEnd   time.Time           `json:"planned_end"`

	FinalGravity *decimal.Decimal `json:"final_gravity,omitempty"`
	Temperature  *decimal.Decimal `json:"temperature,omitempty"`
	Note         *string          `json:"note,omitempty"`

	KeepSameTank     bool    `json:"keep_same_tank"`
	IsSplit          bool    `json:"is_split"`
	EnableBlend      bool    `json:"enable_blend"`
	BlendTargetLotID *string `json:"blend_target_lot_id,omitempty" validate:"omitempty,uuid4"`
}

// LotResponse describes a lot after a transition.
type LotResponse struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Phase         string          `json:"phase"`
	Status        string          `json:"status"`
	PlannedVolume decimal.Decimal `json:"planned_volume"`
	ParentLotID   *string         `json:"parent_lot_id,omitempty"`
	IsBlend       bool            `json:"is_blend"`
}

// AssignmentResponse describes one newly created tank assignment.
type AssignmentResponse struct {
	ID            string          `json:"id"`
	TankID        string          `json:"tank_id"`
	TankName      string          `json:"tank_name,omitempty"`
	LotID         string          `json:"lot_id"`
	Phase         string          `json:"phase"`
	Status        string          `json:"status"`
	PlannedVolume decimal.Decimal `json:"planned_volume"`
	PlannedStart  time.Time       `json:"planned_start"`
	PlannedEnd    time.Time       `json:"planned_end"`
}

// TransitionResponse is returned on success: the resulting lot, the list of
// newly created assignments, and a human-readable summary.
type TransitionResponse struct {
	Lot         LotResponse          `json:"lot"`
	Assignments []AssignmentResponse `json:"assignments"`
	Summary     string               `json:"summary"`
}

// TransferListItem is one audit row in GET /v1/transfers.
type TransferListItem struct {
	ID         string          `json:"id"`
	BatchID    string          `json:"batch_id"`
	LotID      string          `json:"lot_id"`
	FromTankID *string         `json:"from_tank_id,omitempty"`
	ToTankID   *string         `json:"to_tank_id,omitempty"`
	Kind       string          `json:"kind"`
	Volume     decimal.Decimal `json:"volume"`
	CreatedAt  string          `json:"created_at"`
}

// TransferFilter is bound from the query string of GET /v1/transfers.
type TransferFilter struct {
	BatchID string `form:"batch_id"`
	Kind    string `form:"kind"`
	Page    int    `form:"page,default=1" validate:"min=1"`
	Limit   int    `form:"limit,default=50" validate:"min=1,max=200"`
}
