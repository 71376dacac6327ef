package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/notify/internal/domain"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	GetByReference(ctx context.Context, reference string) (*domain.Notification, error)
	MarkDispatched(ctx context.Context, id string, update domain.DispatchUpdate) error
	ResetToCreated(ctx context.Context, id string, sentBy string) error
	MarkTechnicalFailure(ctx context.Context, id string, at time.Time) error
	UpdateStatusIfAwaiting(ctx context.Context, id string, status domain.Status, at time.Time) (bool, error)
	ListStuckCreated(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Notification, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) GetByReference(ctx context.Context, reference string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

// MarkDispatched records the provider hand-off. It only succeeds while the
// notification is still created, so a second dispatch of the same id gets
// ErrConflict instead of overwriting billing columns.
func (r *GormNotificationRepo) MarkDispatched(ctx context.Context, id string, update domain.DispatchUpdate) error {
	values := map[string]any{
		"status":         update.Status,
		"sent_at":        update.SentAt,
		"sent_by":        update.SentBy,
		"billable_units": update.BillableUnits,
	}
	if update.Reference != nil {
		values["reference"] = *update.Reference
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusCreated).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ResetToCreated undoes a dispatch by sentBy that is still sending. Rows that
// moved on report ErrConflict.
func (r *GormNotificationRepo) ResetToCreated(ctx context.Context, id string, sentBy string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ? AND sent_by = ?", id, domain.StatusSending, sentBy).
		Updates(map[string]any{
			"status":         domain.StatusCreated,
			"sent_at":        nil,
			"sent_by":        nil,
			"reference":      nil,
			"billable_units": 0,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// MarkTechnicalFailure fails a notification that has not reached a terminal
// status. Terminal rows are left untouched.
func (r *GormNotificationRepo) MarkTechnicalFailure(ctx context.Context, id string, at time.Time) error {
	open := append([]domain.Status{domain.StatusCreated}, domain.AwaitingUpdateStatuses()...)
	return r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status IN ?", id, open).
		Updates(map[string]any{
			"status":     domain.StatusTechnicalFailure,
			"updated_at": at,
		}).Error
}

// UpdateStatusIfAwaiting is a compare-and-set on the status column. It
// reports false when another writer already moved the row out of the
// awaiting-update set.
func (r *GormNotificationRepo) UpdateStatusIfAwaiting(ctx context.Context, id string, status domain.Status, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND status IN ?", id, domain.AwaitingUpdateStatuses()).
		Updates(map[string]any{
			"status":     status,
			"updated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormNotificationRepo) ListStuckCreated(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at <= ? AND notification_type IN ?",
			domain.StatusCreated, createdBefore, []domain.Channel{domain.ChannelSMS, domain.ChannelEmail}).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}
