package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify/internal/repository"
	"gorm.io/gorm"
)

func createServicesAndTemplatesTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_services_and_templates",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.ServiceModel{}, &repository.TemplateHistoryModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TemplateHistoryModel{}, &repository.ServiceModel{})
		},
	}
}
