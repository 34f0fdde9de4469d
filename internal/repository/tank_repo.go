package repository

import (
	"context"
	"time"

	"github.com/amphorabeer/brewhouse/internal/dto"
	"github.com/amphorabeer/brewhouse/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TankRepository interface {
	Create(ctx context.Context, t *model.Tank) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Tank, error)
	List(ctx context.Context, tenantID uuid.UUID, filter dto.TankFilter) ([]model.Tank, int64, error)
	Update(ctx context.Context, t *model.Tank) error

	// OccupyTx claims the tank for a lot in the given phase.
	OccupyTx(tx *gorm.DB, tankID, lotID uuid.UUID, phase model.Phase) error
	// ReleaseTx frees the tank and clears its occupant snapshot.
	ReleaseTx(tx *gorm.DB, tankID uuid.UUID, status string) error

	// UpsertRegistry syncs the administrative mirror record. Runs OUTSIDE the
	// core transaction; callers treat failures as non-fatal.
	UpsertRegistry(ctx context.Context, rec *model.TankRegistryRecord) error

	DB() *gorm.DB
}

type tankRepo struct{ db *gorm.DB }

func NewTankRepository(db *gorm.DB) TankRepository { return &tankRepo{db: db} }

func (r *tankRepo) DB() *gorm.DB { return r.db }

func (r *tankRepo) Create(ctx context.Context, t *model.Tank) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *tankRepo) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Tank, error) {
	var t model.Tank
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&t, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tankRepo) List(ctx context.Context, tenantID uuid.UUID, filter dto.TankFilter) ([]model.Tank, int64, error) {
	var tanks []model.Tank
	var total int64

	q := r.db.WithContext(ctx).Model(&model.Tank{}).Where("tenant_id = ?", tenantID)
	if filter.Status != "" && filter.Status != "all" {
		q = q.Where("status = ?", filter.Status)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := q.Preload("CurrentLot").
		Order("name ASC").
		Offset(offset).Limit(filter.Limit).
		Find(&tanks).Error
	return tanks, total, err
}

func (r *tankRepo) Update(ctx context.Context, t *model.Tank) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *tankRepo) OccupyTx(tx *gorm.DB, tankID, lotID uuid.UUID, phase model.Phase) error {
	return tx.Model(&model.Tank{}).Where("id = ?", tankID).Updates(map[string]interface{}{
		"status":         model.TankStatusOccupied,
		"current_lot_id": lotID,
		"current_phase":  phase,
	}).Error
}

func (r *tankRepo) ReleaseTx(tx *gorm.DB, tankID uuid.UUID, status string) error {
	return tx.Model(&model.Tank{}).Where("id = ?", tankID).Updates(map[string]interface{}{
		"status":         status,
		"current_lot_id": nil,
		"current_phase":  nil,
	}).Error
}

func (r *tankRepo) UpsertRegistry(ctx context.Context, rec *model.TankRegistryRecord) error {
	rec.SyncedAt = time.Now().UTC()
	// Idempotent projection keyed by (tenant_id, tank_id).
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO tank_registry (id, tenant_id, tank_id, status, lot_code, volume, phase, synced_at)
		VALUES (gen_random_uuid(), ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, tank_id) DO UPDATE
		SET status = EXCLUDED.status,
		    lot_code = EXCLUDED.lot_code,
		    volume = EXCLUDED.volume,
		    phase = EXCLUDED.phase,
		    synced_at = EXCLUDED.synced_at
	`, rec.TenantID, rec.TankID, rec.Status, rec.LotCode, rec.Volume, rec.Phase, rec.SyncedAt).Error
}
