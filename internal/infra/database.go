package infra

import (
	"fmt"

	"github.com/amphorabeer/brewhouse/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate to
// create / update all tables, then applies idempotent SQL patches for the
// constraints GORM cannot express (partial indexes, the registry upsert key).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := db.AutoMigrate(
		&model.User{},
		&model.Tank{},
		&model.Batch{},
		&model.Lot{},
		&model.LotBatch{},
		&model.TankAssignment{},
		&model.Transfer{},
		&model.Measurement{},
		&model.TimelineEvent{},
		&model.TankRegistryRecord{},
	); err != nil {
		return nil, fmt.Errorf("AutoMigrate: %w", err)
	}

	if err := applySchemaPatches(db); err != nil {
		return nil, fmt.Errorf("schema patches: %w", err)
	}

	return db, nil
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot produce.
// Each statement is guarded so re-running on a patched schema is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []string{
		// At most one active assignment per tank, enforced at the DB level too.
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_assignments_tank_active') THEN
		    CREATE UNIQUE INDEX idx_assignments_tank_active
		        ON tank_assignments (tank_id)
		        WHERE status = 'active';
		  END IF;
		END $$`,
		// The registry upsert relies on ON CONFLICT (tenant_id, tank_id).
		`DO $$ BEGIN
		  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_tank_registry_tank') THEN
		    CREATE UNIQUE INDEX idx_tank_registry_tank
		        ON tank_registry (tenant_id, tank_id);
		  END IF;
		END $$`,
	}

	for _, sql := range patches {
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", sql[:min(len(sql), 60)], err)
		}
	}
	return nil
}

// RunMigrations applies the full schema for integration tests.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Tank{},
		&model.Batch{},
		&model.Lot{},
		&model.LotBatch{},
		&model.TankAssignment{},
		&model.Transfer{},
		&model.Measurement{},
		&model.TimelineEvent{},
		&model.TankRegistryRecord{},
	); err != nil {
		return err
	}
	return applySchemaPatches(db)
}
