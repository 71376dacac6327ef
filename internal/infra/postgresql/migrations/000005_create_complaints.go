package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify/internal/repository"
	"gorm.io/gorm"
)

func createComplaintsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_complaints",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.ComplaintModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ComplaintModel{})
		},
	}
}
