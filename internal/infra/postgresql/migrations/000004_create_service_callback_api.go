package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify/internal/repository"
	"gorm.io/gorm"
)

func createServiceCallbackAPITable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_service_callback_api",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.ServiceCallbackAPIModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ServiceCallbackAPIModel{})
		},
	}
}
