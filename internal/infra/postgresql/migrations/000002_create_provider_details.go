package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify/internal/repository"
	"gorm.io/gorm"
)

func createProviderDetailsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_provider_details",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ProviderDetailModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_provider_details_type_priority ON provider_details (notification_type, priority)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ProviderDetailModel{})
		},
	}
}
