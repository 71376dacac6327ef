package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/notify/internal/domain"
	"gorm.io/gorm"
)

type CallbackFailureRepository interface {
	Create(ctx context.Context, f *domain.CallbackFailure) error
	StatsForService(ctx context.Context, serviceID string, since time.Time) (domain.CallbackFailureStats, error)
}

type GormCallbackFailureRepo struct {
	db *gorm.DB
}

func NewGormCallbackFailureRepo(db *gorm.DB) *GormCallbackFailureRepo {
	return &GormCallbackFailureRepo{db: db}
}

func (r *GormCallbackFailureRepo) Create(ctx context.Context, f *domain.CallbackFailure) error {
	return r.db.WithContext(ctx).Create(callbackFailureModelFromDomain(f)).Error
}

type callbackFailureStatsRow struct {
	TotalFailureCount       int64 `gorm:"column:total_failure_count"`
	FailedNotificationCount int64 `gorm:"column:failed_notification_count"`
}

// StatsForService counts failed attempts and distinct failed notifications
// for one service since the given time.
func (r *GormCallbackFailureRepo) StatsForService(ctx context.Context, serviceID string, since time.Time) (domain.CallbackFailureStats, error) {
	var row callbackFailureStatsRow
	err := r.db.WithContext(ctx).
		Model(&CallbackFailureModel{}).
		Select("COUNT(*) AS total_failure_count, COUNT(DISTINCT notification_id) AS failed_notification_count").
		Where("service_id = ? AND attempt_started_at >= ?", serviceID, since).
		Scan(&row).Error
	if err != nil {
		return domain.CallbackFailureStats{}, err
	}

	return domain.CallbackFailureStats{
		TotalFailureCount:       row.TotalFailureCount,
		FailedNotificationCount: row.FailedNotificationCount,
	}, nil
}
