package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LotBatch resolves the many-to-many between Lot and Batch. Each row carries
// the batch's volume contribution to the lot plus its percentage of the lot.
// Percentages are recomputed per change across the lot's rows from volumes;
// rows of OTHER lots are never renormalized.
//
// On a blend the moving batch keeps its historical fermentation-phase row and
// gains a new conditioning-phase row on the target lot (dual lineage).
type LotBatch struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	LotID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_lot_batches_lot"`
	BatchID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_lot_batches_batch"`
	Phase      Phase           `gorm:"type:varchar(20);not null"`
	Volume     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Percentage decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Lot   *Lot   `gorm:"foreignKey:LotID"`
	Batch *Batch `gorm:"foreignKey:BatchID"`
}

// TableName overrides GORM's default pluralization (lot_batchs → lot_batches).
func (LotBatch) TableName() string { return "lot_batches" }
