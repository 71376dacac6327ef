package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// SNS redelivers complaint events, so one SES feedback id maps to at most
// one complaint. Rows without a feedback id are left unconstrained.
func uniqueComplaintFeedback() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000007_unique_complaint_feedback",
		Migrate: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`DELETE FROM complaints a USING complaints b
					WHERE a.ses_feedback_id <> '' AND a.ses_feedback_id = b.ses_feedback_id
					AND (a.created_at, a.id) > (b.created_at, b.id)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS uq_complaints_ses_feedback_id ON complaints (ses_feedback_id) WHERE ses_feedback_id <> ''`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS uq_complaints_ses_feedback_id`).Error
		},
	}
}
