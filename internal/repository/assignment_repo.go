package repository

import (
	"context"

	"github.com/amphorabeer/brewhouse/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AssignmentRepository interface {
	CreateTx(ctx context.Context, tx *gorm.DB, a *model.TankAssignment) error
	// FindActiveByTank returns the active assignments currently claiming the
	// tank. Used by the capacity and occupancy checks.
	FindActiveByTank(ctx context.Context, tenantID, tankID uuid.UUID) ([]model.TankAssignment, error)
	// FindOpenByLot returns the lot's planned/active assignments for a phase.
	FindOpenByLot(ctx context.Context, tenantID, lotID uuid.UUID, phase model.Phase) ([]model.TankAssignment, error)
	CloseTx(tx *gorm.DB, a *model.TankAssignment) error
	AddVolumeTx(tx *gorm.DB, id uuid.UUID, delta decimal.Decimal) error

	DB() *gorm.DB
}

type assignmentRepo struct{ db *gorm.DB }

func NewAssignmentRepository(db *gorm.DB) AssignmentRepository { return &assignmentRepo{db: db} }

func (r *assignmentRepo) DB() *gorm.DB { return r.db }

func (r *assignmentRepo) CreateTx(ctx context.Context, tx *gorm.DB, a *model.TankAssignment) error {
	return tx.WithContext(ctx).Create(a).Error
}

func (r *assignmentRepo) FindActiveByTank(ctx context.Context, tenantID, tankID uuid.UUID) ([]model.TankAssignment, error) {
	var assignments []model.TankAssignment
	err := r.db.WithContext(ctx).
		Preload("Lot").
		Where("tenant_id = ? AND tank_id = ? AND status = ?", tenantID, tankID, model.StatusActive).
		Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepo) FindOpenByLot(ctx context.Context, tenantID, lotID uuid.UUID, phase model.Phase) ([]model.TankAssignment, error) {
	var assignments []model.TankAssignment
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND lot_id = ? AND phase = ? AND status IN ?",
			tenantID, lotID, phase, []string{model.StatusPlanned, model.StatusActive}).
		Find(&assignments).Error
	return assignments, err
}

func (r *assignmentRepo) CloseTx(tx *gorm.DB, a *model.TankAssignment) error {
	return tx.Model(&model.TankAssignment{}).Where("id = ?", a.ID).Updates(map[string]interface{}{
		"status":     a.Status,
		"actual_end": a.ActualEnd,
	}).Error
}

func (r *assignmentRepo) AddVolumeTx(tx *gorm.DB, id uuid.UUID, delta decimal.Decimal) error {
	return tx.Model(&model.TankAssignment{}).Where("id = ?", id).
		Update("planned_volume", gorm.Expr("planned_volume + ?", delta)).Error
}
