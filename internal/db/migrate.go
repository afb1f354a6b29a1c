package db

import (
	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
)

// AutoMigrate creates the tables plus the constraints gorm tags cannot
// express: one active proposal per order and non-negative capacity.
func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	if err := db.Gorm.AutoMigrate(
		&models.Order{},
		&models.ProviderIntent{},
		&models.Proposal{},
		&models.ProviderReputation{},
		&models.DomainEvent{},
		&models.SystemSetting{},
	); err != nil {
		return err
	}
	for _, stmt := range constraintStatements {
		if err := db.Gorm.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

var constraintStatements = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_proposals_active_order ON proposals (order_id) WHERE status IN ('PENDING', 'ACCEPTED')`,
	`DO $$ BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'ck_provider_intents_capacity') THEN
			ALTER TABLE provider_intents ADD CONSTRAINT ck_provider_intents_capacity CHECK (available_amount >= 0 AND reserved_amount >= 0);
		END IF;
	END $$`,
}
