package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/notify/internal/domain"
	"gorm.io/gorm"
)

type ProviderDetailRepository interface {
	ListByChannel(ctx context.Context, channel domain.Channel) ([]domain.ProviderDetail, error)
	SetActive(ctx context.Context, identifier string, active bool) error
}

type GormProviderDetailRepo struct {
	db *gorm.DB
}

func NewGormProviderDetailRepo(db *gorm.DB) *GormProviderDetailRepo {
	return &GormProviderDetailRepo{db: db}
}

func (r *GormProviderDetailRepo) ListByChannel(ctx context.Context, channel domain.Channel) ([]domain.ProviderDetail, error) {
	var models []ProviderDetailModel
	err := r.db.WithContext(ctx).
		Where("notification_type = ?", channel).
		Order("priority ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	details := make([]domain.ProviderDetail, 0, len(models))
	for i := range models {
		details = append(details, providerDetailModelToDomain(&models[i]))
	}
	return details, nil
}

// SetActive toggles a provider. Concurrent toggles are last write wins.
func (r *GormProviderDetailRepo) SetActive(ctx context.Context, identifier string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&ProviderDetailModel{}).
		Where("identifier = ?", identifier).
		Updates(map[string]any{
			"active":     active,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
