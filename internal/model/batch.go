package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Batch status values. Status is DERIVED from the phases of the batch's
// linked lots — it is recomputed after every transition, never authoritative.
const (
	BatchStatusFermenting   = "fermenting"
	BatchStatusConditioning = "conditioning"
)

// Batch is a production run. It may span multiple lots (after a split) or
// contribute to a shared lot (after a blend); the many-to-many is resolved
// through LotBatch.
type Batch struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_batches_tenant_code"`
	Code          string          `gorm:"not null;uniqueIndex:idx_batches_tenant_code"`
	RecipeName    string          `gorm:"not null"`
	Status        string          `gorm:"type:varchar(20);not null;default:'fermenting'"`
	PlannedVolume decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	BrewedAt      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	LotLinks []LotBatch `gorm:"foreignKey:BatchID"`
}

// TableName overrides GORM's default pluralization (batches, not batchs).
func (Batch) TableName() string { return "batches" }
