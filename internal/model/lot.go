package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lot is a trackable quantity of in-process liquid moving through production
// phases. Lots form a tree via ParentLotID (splits) crossed with a
// many-to-many batch linkage (blends) — a DAG, not a simple tree.
//
// A lot that has children is retired (completed) once the split is finalized;
// the children carry the active lineage. A blend-target lot stays active and
// simply gains more LotBatch links.
type Lot struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_lots_tenant_code"`
	Code          string          `gorm:"not null;uniqueIndex:idx_lots_tenant_code"`
	Phase         Phase           `gorm:"type:varchar(20);not null;default:'fermentation'"`
	Status        string          `gorm:"type:varchar(20);not null;default:'active'"`
	PlannedVolume decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ParentLotID   *uuid.UUID      `gorm:"type:uuid;index"`
	IsBlend       bool            `gorm:"not null;default:false"`
	BlendedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Parent     *Lot       `gorm:"foreignKey:ParentLotID"`
	BatchLinks []LotBatch `gorm:"foreignKey:LotID"`
}

// AdvancePhase moves the lot forward. A lot's phase never regresses; an
// attempt to set an earlier or equal phase is rejected.
func (l *Lot) AdvancePhase(next Phase) error {
	if !next.Valid() {
		return fmt.Errorf("lot %s: unknown phase %q", l.Code, next)
	}
	if !l.Phase.Before(next) {
		return fmt.Errorf("lot %s: phase cannot regress from %s to %s", l.Code, l.Phase, next)
	}
	l.Phase = next
	return nil
}

// SetParent records the split parent. A blend target can never become a split
// parent reference holder — this bounds split nesting to a single level.
func (l *Lot) SetParent(parent *Lot) error {
	if l.IsBlend {
		return fmt.Errorf("lot %s is a blend target and cannot be split", l.Code)
	}
	l.ParentLotID = &parent.ID
	return nil
}
