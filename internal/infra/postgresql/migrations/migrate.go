package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// All returns every migration in the order it must run.
func All() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createNotificationsTable(),
		createProviderDetailsTable(),
		createServicesAndTemplatesTables(),
		createServiceCallbackAPITable(),
		createComplaintsTable(),
		createCallbackFailuresTable(),
		uniqueComplaintFeedback(),
	}
}

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, All())
	return m.Migrate()
}

func execAll(tx *gorm.DB, statements []string) error {
	for _, sql := range statements {
		if err := tx.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}
