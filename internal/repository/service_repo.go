package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/notify/internal/domain"
	"gorm.io/gorm"
)

type ServiceRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Service, error)
}

type TemplateRepository interface {
	GetVersion(ctx context.Context, id string, version int) (*domain.Template, error)
}

type CallbackAPIRepository interface {
	GetForService(ctx context.Context, serviceID string, callbackType domain.CallbackType) (*domain.ServiceCallbackAPI, error)
}

type GormServiceRepo struct {
	db *gorm.DB
}

func NewGormServiceRepo(db *gorm.DB) *GormServiceRepo {
	return &GormServiceRepo{db: db}
}

func (r *GormServiceRepo) GetByID(ctx context.Context, id string) (*domain.Service, error) {
	var model ServiceModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return serviceModelToDomain(&model), nil
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) GetVersion(ctx context.Context, id string, version int) (*domain.Template, error) {
	var model TemplateHistoryModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND version = ?", id, version).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}

type GormCallbackAPIRepo struct {
	db *gorm.DB
}

func NewGormCallbackAPIRepo(db *gorm.DB) *GormCallbackAPIRepo {
	return &GormCallbackAPIRepo{db: db}
}

// GetForService returns ErrNotFound when the service has not registered a
// callback of the given type.
func (r *GormCallbackAPIRepo) GetForService(ctx context.Context, serviceID string, callbackType domain.CallbackType) (*domain.ServiceCallbackAPI, error) {
	var model ServiceCallbackAPIModel
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND callback_type = ?", serviceID, callbackType).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return callbackAPIModelToDomain(&model), nil
}
