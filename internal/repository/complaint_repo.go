package repository

import (
	"context"

	"github.com/kursadbilgin/notify/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ComplaintRepository interface {
	Create(ctx context.Context, c *domain.Complaint) error
}

type GormComplaintRepo struct {
	db *gorm.DB
}

func NewGormComplaintRepo(db *gorm.DB) *GormComplaintRepo {
	return &GormComplaintRepo{db: db}
}

// Create stores a complaint. A complaint whose SES feedback id is already
// recorded is not stored again and reports ErrConflict.
func (r *GormComplaintRepo) Create(ctx context.Context, c *domain.Complaint) error {
	model := complaintModelFromDomain(c)
	if model.FeedbackID == "" {
		return r.db.WithContext(ctx).Create(model).Error
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:     []clause.Column{{Name: "ses_feedback_id"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Neq{Column: "ses_feedback_id", Value: ""}}},
			DoNothing:   true,
		}).
		Create(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
