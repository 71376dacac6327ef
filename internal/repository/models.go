package repository

import (
	"time"

	"github.com/kursadbilgin/notify/internal/domain"
	"gorm.io/datatypes"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID               string            `gorm:"type:uuid;primaryKey"`
	ServiceID        string            `gorm:"type:uuid;not null;index"`
	TemplateID       string            `gorm:"type:uuid;not null"`
	TemplateVersion  int               `gorm:"not null"`
	NotificationType domain.Channel    `gorm:"type:varchar(10);not null"`
	To               string            `gorm:"column:to;type:varchar(255);not null"`
	Personalisation  datatypes.JSONMap `gorm:"type:jsonb"`
	Status           domain.Status     `gorm:"type:varchar(20);not null;index"`
	Reference        *string           `gorm:"type:varchar(255);uniqueIndex"`
	ClientReference  *string           `gorm:"type:varchar(255)"`
	SentAt           *time.Time        `gorm:"type:timestamptz"`
	SentBy           *string           `gorm:"type:varchar(100)"`
	BillableUnits    int               `gorm:"not null;default:0"`
	KeyType          domain.KeyType    `gorm:"type:varchar(10);not null"`
	International    bool              `gorm:"not null;default:false"`
	ReplyToText      *string           `gorm:"type:varchar(255)"`
	CreatedAt        time.Time
	UpdatedAt        *time.Time `gorm:"autoUpdateTime:false"`
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// ProviderDetailModel is the persistence model for provider_details.
type ProviderDetailModel struct {
	ID                    string         `gorm:"type:uuid;primaryKey"`
	Identifier            string         `gorm:"type:varchar(50);not null;uniqueIndex"`
	DisplayName           string         `gorm:"type:varchar(100);not null"`
	NotificationType      domain.Channel `gorm:"type:varchar(10);not null"`
	Active                bool           `gorm:"not null;default:true"`
	Priority              int            `gorm:"not null"`
	SupportsInternational bool           `gorm:"not null;default:false"`
	UpdatedAt             time.Time
}

func (ProviderDetailModel) TableName() string {
	return "provider_details"
}

// ServiceModel is the persistence model for services.
type ServiceModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Name         string `gorm:"type:varchar(255);not null"`
	Active       bool   `gorm:"not null;default:true"`
	ResearchMode bool   `gorm:"not null;default:false"`
	PrefixSMS    bool   `gorm:"column:prefix_sms;not null;default:true"`
	EmailFrom    string `gorm:"type:varchar(255);not null"`
}

func (ServiceModel) TableName() string {
	return "services"
}

// TemplateHistoryModel is one immutable template version.
type TemplateHistoryModel struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Version      int            `gorm:"primaryKey"`
	TemplateType domain.Channel `gorm:"type:varchar(10);not null"`
	Subject      string         `gorm:"type:text"`
	Content      string         `gorm:"type:text;not null"`
}

func (TemplateHistoryModel) TableName() string {
	return "templates_history"
}

// ServiceCallbackAPIModel is the persistence model for service_callback_api.
type ServiceCallbackAPIModel struct {
	ID           string              `gorm:"type:uuid;primaryKey"`
	ServiceID    string              `gorm:"type:uuid;not null;uniqueIndex:uix_service_callback_type"`
	CallbackType domain.CallbackType `gorm:"type:varchar(20);not null;uniqueIndex:uix_service_callback_type"`
	URL          string              `gorm:"type:varchar(255);not null"`
	BearerToken  string              `gorm:"type:varchar(255);not null"`
}

func (ServiceCallbackAPIModel) TableName() string {
	return "service_callback_api"
}

// ComplaintModel is the persistence model for complaints.
type ComplaintModel struct {
	ID             string     `gorm:"type:uuid;primaryKey"`
	NotificationID string     `gorm:"type:uuid;not null;index"`
	ServiceID      string     `gorm:"type:uuid;not null;index"`
	FeedbackID     string     `gorm:"column:ses_feedback_id;type:varchar(255)"`
	ComplaintType  string     `gorm:"type:text"`
	ComplaintDate  *time.Time `gorm:"type:timestamptz"`
	CreatedAt      time.Time
}

func (ComplaintModel) TableName() string {
	return "complaints"
}

// CallbackFailureModel is the persistence model for callback_failures.
type CallbackFailureModel struct {
	ID               string              `gorm:"type:uuid;primaryKey"`
	NotificationID   string              `gorm:"type:uuid;not null;index"`
	ServiceID        string              `gorm:"type:uuid;not null;index"`
	CallbackType     domain.CallbackType `gorm:"type:varchar(20);not null"`
	CallbackURL      string              `gorm:"type:varchar(255);not null"`
	StatusCode       *int                `gorm:"type:int"`
	Error            *string             `gorm:"type:text"`
	AttemptStartedAt time.Time           `gorm:"not null"`
	AttemptEndedAt   time.Time           `gorm:"not null"`
}

func (CallbackFailureModel) TableName() string {
	return "callback_failures"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:               n.ID,
		ServiceID:        n.ServiceID,
		TemplateID:       n.TemplateID,
		TemplateVersion:  n.TemplateVersion,
		NotificationType: n.Channel,
		To:               n.To,
		Personalisation:  datatypes.JSONMap(n.Personalisation),
		Status:           n.Status,
		Reference:        n.Reference,
		ClientReference:  n.ClientReference,
		SentAt:           n.SentAt,
		SentBy:           n.SentBy,
		BillableUnits:    n.BillableUnits,
		KeyType:          n.KeyType,
		International:    n.International,
		ReplyToText:      n.ReplyToText,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:              m.ID,
		ServiceID:       m.ServiceID,
		TemplateID:      m.TemplateID,
		TemplateVersion: m.TemplateVersion,
		Channel:         m.NotificationType,
		To:              m.To,
		Personalisation: map[string]any(m.Personalisation),
		Status:          m.Status,
		Reference:       m.Reference,
		ClientReference: m.ClientReference,
		SentAt:          m.SentAt,
		SentBy:          m.SentBy,
		BillableUnits:   m.BillableUnits,
		KeyType:         m.KeyType,
		International:   m.International,
		ReplyToText:     m.ReplyToText,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func providerDetailModelToDomain(m *ProviderDetailModel) domain.ProviderDetail {
	return domain.ProviderDetail{
		ID:                    m.ID,
		Identifier:            m.Identifier,
		DisplayName:           m.DisplayName,
		Channel:               m.NotificationType,
		Active:                m.Active,
		Priority:              m.Priority,
		SupportsInternational: m.SupportsInternational,
		UpdatedAt:             m.UpdatedAt,
	}
}

func serviceModelToDomain(m *ServiceModel) *domain.Service {
	return &domain.Service{
		ID:           m.ID,
		Name:         m.Name,
		Active:       m.Active,
		ResearchMode: m.ResearchMode,
		PrefixSMS:    m.PrefixSMS,
		EmailFrom:    m.EmailFrom,
	}
}

func templateModelToDomain(m *TemplateHistoryModel) *domain.Template {
	return &domain.Template{
		ID:      m.ID,
		Version: m.Version,
		Type:    m.TemplateType,
		Subject: m.Subject,
		Content: m.Content,
	}
}

func callbackAPIModelToDomain(m *ServiceCallbackAPIModel) *domain.ServiceCallbackAPI {
	return &domain.ServiceCallbackAPI{
		ID:           m.ID,
		ServiceID:    m.ServiceID,
		CallbackType: m.CallbackType,
		URL:          m.URL,
		BearerToken:  m.BearerToken,
	}
}

func complaintModelFromDomain(c *domain.Complaint) *ComplaintModel {
	if c == nil {
		return nil
	}

	return &ComplaintModel{
		ID:             c.ID,
		NotificationID: c.NotificationID,
		ServiceID:      c.ServiceID,
		FeedbackID:     c.FeedbackID,
		ComplaintType:  c.ComplaintType,
		ComplaintDate:  c.ComplaintDate,
		CreatedAt:      c.CreatedAt,
	}
}

func callbackFailureModelFromDomain(f *domain.CallbackFailure) *CallbackFailureModel {
	if f == nil {
		return nil
	}

	return &CallbackFailureModel{
		ID:               f.ID,
		NotificationID:   f.NotificationID,
		ServiceID:        f.ServiceID,
		CallbackType:     f.CallbackType,
		CallbackURL:      f.CallbackURL,
		StatusCode:       f.StatusCode,
		Error:            f.Error,
		AttemptStartedAt: f.AttemptStartedAt,
		AttemptEndedAt:   f.AttemptEndedAt,
	}
}
