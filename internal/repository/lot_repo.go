package repository

import (
	"context"

	"github.com/amphorabeer/brewhouse/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LotRepository covers lots and their lot_batches join rows. The join rows
// live here rather than in a repository of their own because every write to
// one is part of a lot mutation.
type LotRepository interface {
	CreateTx(ctx context.Context, tx *gorm.DB, l *model.Lot) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Lot, error)
	// FindByBatch returns lots linked to the batch through lot_batches,
	// restricted to the given phase ("" = any), ordered by code.
	FindByBatch(ctx context.Context, tenantID, batchID uuid.UUID, phase model.Phase) ([]model.Lot, error)
	// FindChildren returns the direct children of a split parent, code order.
	FindChildren(ctx context.Context, tenantID, parentID uuid.UUID) ([]model.Lot, error)
	// Tx read variants see uncommitted writes of the running transaction —
	// used by the derived-status recomputation inside the commit.
	FindByBatchTx(tx *gorm.DB, tenantID, batchID uuid.UUID, phase model.Phase) ([]model.Lot, error)
	FindChildrenTx(tx *gorm.DB, tenantID, parentID uuid.UUID) ([]model.Lot, error)
	UpdateTx(tx *gorm.DB, l *model.Lot) error

	// Join rows
	CreateLinkTx(ctx context.Context, tx *gorm.DB, lb *model.LotBatch) error
	FindLink(ctx context.Context, tenantID, lotID, batchID uuid.UUID) (*model.LotBatch, error)
	FindLinksByLot(ctx context.Context, tenantID, lotID uuid.UUID) ([]model.LotBatch, error)
	UpdateLinkTx(tx *gorm.DB, lb *model.LotBatch) error

	DB() *gorm.DB
}

type lotRepo struct{ db *gorm.DB }

func NewLotRepository(db *gorm.DB) LotRepository { return &lotRepo{db: db} }

func (r *lotRepo) DB() *gorm.DB { return r.db }

func (r *lotRepo) CreateTx(ctx context.Context, tx *gorm.DB, l *model.Lot) error {
	return tx.WithContext(ctx).Create(l).Error
}

func (r *lotRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Lot, error) {
	var l model.Lot
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&l, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *lotRepo) FindByBatch(ctx context.Context, tenantID, batchID uuid.UUID, phase model.Phase) ([]model.Lot, error) {
	var lots []model.Lot
	q := r.db.WithContext(ctx).
		Joins("JOIN lot_batches lb ON lb.lot_id = lots.id").
		Where("lb.batch_id = ? AND lots.tenant_id = ?", batchID, tenantID)
	if phase != "" {
		q = q.Where("lots.phase = ?", phase)
	}
	err := q.Distinct().Order("lots.code ASC").Find(&lots).Error
	return lots, err
}

func (r *lotRepo) FindChildren(ctx context.Context, tenantID, parentID uuid.UUID) ([]model.Lot, error) {
	var lots []model.Lot
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND parent_lot_id = ?", tenantID, parentID).
		Order("code ASC").
		Find(&lots).Error
	return lots, err
}

func (r *lotRepo) FindByBatchTx(tx *gorm.DB, tenantID, batchID uuid.UUID, phase model.Phase) ([]model.Lot, error) {
	var lots []model.Lot
	q := tx.
		Joins("JOIN lot_batches lb ON lb.lot_id = lots.id").
		Where("lb.batch_id = ? AND lots.tenant_id = ?", batchID, tenantID)
	if phase != "" {
		q = q.Where("lots.phase = ?", phase)
	}
	err := q.Distinct().Order("lots.code ASC").Find(&lots).Error
	return lots, err
}

func (r *lotRepo) FindChildrenTx(tx *gorm.DB, tenantID, parentID uuid.UUID) ([]model.Lot, error) {
	var lots []model.Lot
	err := tx.
		Where("tenant_id = ? AND parent_lot_id = ?", tenantID, parentID).
		Order("code ASC").
		Find(&lots).Error
	return lots, err
}

func (r *lotRepo) UpdateTx(tx *gorm.DB, l *model.Lot) error {
	return tx.Save(l).Error
}

func (r *lotRepo) CreateLinkTx(ctx context.Context, tx *gorm.DB, lb *model.LotBatch) error {
	return tx.WithContext(ctx).Create(lb).Error
}

func (r *lotRepo) FindLink(ctx context.Context, tenantID, lotID, batchID uuid.UUID) (*model.LotBatch, error) {
	var lb model.LotBatch
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND lot_id = ? AND batch_id = ?", tenantID, lotID, batchID).
		Order("created_at DESC").
		First(&lb).Error
	if err != nil {
		return nil, err
	}
	return &lb, nil
}

func (r *lotRepo) FindLinksByLot(ctx context.Context, tenantID, lotID uuid.UUID) ([]model.LotBatch, error) {
	var links []model.LotBatch
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND lot_id = ?", tenantID, lotID).
		Order("created_at ASC").
		Find(&links).Error
	return links, err
}

func (r *lotRepo) UpdateLinkTx(tx *gorm.DB, lb *model.LotBatch) error {
	return tx.Save(lb).Error
}
