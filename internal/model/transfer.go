package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transfer kinds.
const (
	TransferKindMove  = "transfer"
	TransferKindSplit = "split"
	TransferKindBlend = "blend"
	TransferKindStay  = "stay_in_tank"
)

// Transfer is an immutable append-only audit record of a volume movement.
// Rows are written inside the transition transaction and never read back by
// the engine — they exist for reporting and traceability only.
type Transfer struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	BatchID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	LotID      uuid.UUID       `gorm:"type:uuid;not null"`
	FromTankID *uuid.UUID      `gorm:"type:uuid"`
	ToTankID   *uuid.UUID      `gorm:"type:uuid"`
	Kind       string          `gorm:"type:varchar(20);not null"`
	Volume     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Note       *string
	CreatedBy  uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt  time.Time
}
