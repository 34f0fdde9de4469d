package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Measurement kinds.
const (
	MeasurementFinalGravity = "final_gravity"
	MeasurementTemperature  = "temperature"
)

// Measurement is a best-effort reading captured alongside a transition.
// Its write is explicitly exempt from the all-or-nothing rule: a failure is
// logged and never fails the transition that carried it.
type Measurement struct {
	ID       uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID uuid.UUID       `gorm:"type:uuid;not null;index"`
	BatchID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	LotID    uuid.UUID       `gorm:"type:uuid;not null"`
	Kind     string          `gorm:"type:varchar(20);not null"`
	Value    decimal.Decimal `gorm:"type:decimal(8,3);not null"`
	TakenAt  time.Time       `gorm:"not null"`
	TakenBy  uuid.UUID       `gorm:"type:uuid;not null"`
}
