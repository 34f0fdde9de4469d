package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tank status values.
const (
	TankStatusAvailable     = "available"
	TankStatusOccupied      = "occupied"
	TankStatusNeedsCleaning = "needs_cleaning"
)

// Tank is a physical vessel. Occupancy truth lives in TankAssignment rows;
// CurrentLotID / CurrentPhase are a convenience snapshot updated in the same
// transaction as the assignments.
type Tank struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_tanks_tenant_name"`
	Name         string          `gorm:"not null;uniqueIndex:idx_tanks_tenant_name"`
	Capacity     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status       string          `gorm:"type:varchar(20);not null;default:'available'"`
	CurrentLotID *uuid.UUID      `gorm:"type:uuid"`
	CurrentPhase *Phase          `gorm:"type:varchar(20)"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	CurrentLot *Lot `gorm:"foreignKey:CurrentLotID"`
}

// TankRegistryRecord is the administrative reporting mirror of a Tank.
// It is synced best-effort OUTSIDE the core transaction (idempotent upsert by
// the mirror worker); a failed sync never fails a transition.
type TankRegistryRecord struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tank_registry_tank"`
	TankID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_tank_registry_tank"`
	Status   string    `gorm:"type:varchar(20);not null"`
	LotCode  *string
	Volume   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Phase    *Phase          `gorm:"type:varchar(20)"`
	SyncedAt time.Time
}

// TableName keeps the mirror clearly separated from the authoritative table.
func (TankRegistryRecord) TableName() string { return "tank_registry" }
