package dto

import "github.com/shopspring/decimal"

// LotDetailResponse is the lineage view of a lot: itself, its split parent,
// its children, and the batch links that compose it.
type LotDetailResponse struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Phase         string          `json:"phase"`
	Status        string          `json:"status"`
	PlannedVolume decimal.Decimal `json:"planned_volume"`
	IsBlend       bool            `json:"is_blend"`
	BlendedAt     *string         `json:"blended_at,omitempty"`
	Parent        *LotResponse    `json:"parent,omitempty"`
	Children      []LotResponse   `json:"children,omitempty"`
	Batches       []LotLinkItem   `json:"batches,omitempty"`
}
