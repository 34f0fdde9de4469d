package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TankAssignment is a time-boxed occupancy of one tank by one lot for one
// phase. At most one active assignment may exist per tank at any instant; a
// successor assignment is only opened after the predecessor on the same tank
// is closed in the same transaction.
type TankAssignment struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	TankID        uuid.UUID `gorm:"type:uuid;not null;index:idx_assignments_tank"`
	LotID         uuid.UUID `gorm:"type:uuid;not null;index:idx_assignments_lot"`
	Phase         Phase     `gorm:"type:varchar(20);not null"`
	Status        string    `gorm:"type:varchar(20);not null;default:'planned'"`
	PlannedStart  time.Time `gorm:"not null"`
	PlannedEnd    time.Time
	ActualEnd     *time.Time
	PlannedVolume decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	ActualVolume  *decimal.Decimal `gorm:"type:decimal(12,2)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Tank *Tank `gorm:"foreignKey:TankID"`
	Lot  *Lot  `gorm:"foreignKey:LotID"`
}

// Close marks the assignment completed at the given instant. The instant is
// business time (the successor's planned start), not wall clock.
func (a *TankAssignment) Close(at time.Time) {
	a.Status = StatusCompleted
	a.ActualEnd = &at
}
