package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify/internal/repository"
	"gorm.io/gorm"
)

func createCallbackFailuresTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_create_callback_failures",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CallbackFailureModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_callback_failures_service_started ON callback_failures (service_id, attempt_started_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CallbackFailureModel{})
		},
	}
}
