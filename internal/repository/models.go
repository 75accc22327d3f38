package repository

import (
	"encoding/json"
	"time"

	"github.com/studyhub/notification-queue/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
type NotificationModel struct {
	ID                     string          `gorm:"type:uuid;primaryKey"`
	Type                   domain.Type     `gorm:"type:varchar(30);not null;index:idx_notifications_type"`
	Label                  string          `gorm:"type:varchar(255);not null"`
	Details                json.RawMessage `gorm:"type:jsonb;not null"`
	ProcessingStatus       domain.Status   `gorm:"type:varchar(20);not null;index:idx_notifications_processing_status"`
	ProcessingFailCount    int             `gorm:"not null;default:0"`
	ProcessingErrorMessage *string         `gorm:"type:text"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// ProcessingAttemptModel is the persistence model for processing_attempts.
type ProcessingAttemptModel struct {
	ID             string        `gorm:"type:uuid;primaryKey"`
	NotificationID string        `gorm:"type:uuid;not null"`
	AttemptNumber  int           `gorm:"not null"`
	Outcome        domain.Status `gorm:"type:varchar(20);not null"`
	Error          *string       `gorm:"type:text"`
	CorrelationID  string        `gorm:"type:varchar(36);not null"`
	CreatedAt      time.Time
}

func (ProcessingAttemptModel) TableName() string {
	return "processing_attempts"
}

// RunModel is the persistence model for processing_runs.
type RunModel struct {
	ID         string           `gorm:"type:uuid;primaryKey"`
	Trigger    string           `gorm:"type:varchar(30);not null"`
	Status     domain.RunStatus `gorm:"type:varchar(20);not null"`
	Fetched    int              `gorm:"not null;default:0"`
	Processed  int              `gorm:"not null;default:0"`
	Retried    int              `gorm:"not null;default:0"`
	DeadLetter int              `gorm:"not null;default:0"`
	Skipped    int              `gorm:"not null;default:0"`
	StartedAt  time.Time
	FinishedAt *time.Time
}

func (RunModel) TableName() string {
	return "processing_runs"
}

// EmailTemplateModel is the persistence model for email_templates.
type EmailTemplateModel struct {
	Name              string          `gorm:"type:varchar(100);primaryKey"`
	TemplateID        string          `gorm:"type:varchar(100);not null"`
	From              string          `gorm:"type:varchar(255);not null"`
	CC                json.RawMessage `gorm:"type:jsonb"`
	BCC               json.RawMessage `gorm:"type:jsonb"`
	ContactProperties json.RawMessage `gorm:"type:jsonb"`
	CustomProperties  json.RawMessage `gorm:"type:jsonb"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (EmailTemplateModel) TableName() string {
	return "email_templates"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:                     n.ID,
		Type:                   n.Type,
		Label:                  n.Label,
		Details:                n.Details,
		ProcessingStatus:       n.ProcessingStatus,
		ProcessingFailCount:    n.ProcessingFailCount,
		ProcessingErrorMessage: n.ProcessingErrorMessage,
		CreatedAt:              n.CreatedAt,
		UpdatedAt:              n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:                     m.ID,
		Type:                   m.Type,
		Label:                  m.Label,
		Details:                m.Details,
		ProcessingStatus:       m.ProcessingStatus,
		ProcessingFailCount:    m.ProcessingFailCount,
		ProcessingErrorMessage: m.ProcessingErrorMessage,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.ProcessingAttempt) *ProcessingAttemptModel {
	if a == nil {
		return nil
	}

	return &ProcessingAttemptModel{
		ID:             a.ID,
		NotificationID: a.NotificationID,
		AttemptNumber:  a.AttemptNumber,
		Outcome:        a.Outcome,
		Error:          a.Error,
		CorrelationID:  a.CorrelationID,
		CreatedAt:      a.CreatedAt,
	}
}

func runModelFromDomain(r *domain.Run) *RunModel {
	if r == nil {
		return nil
	}

	return &RunModel{
		ID:         r.ID,
		Trigger:    r.Trigger,
		Status:     r.Status,
		Fetched:    r.Fetched,
		Processed:  r.Processed,
		Retried:    r.Retried,
		DeadLetter: r.DeadLetter,
		Skipped:    r.Skipped,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

func templateModelToDomain(m *EmailTemplateModel) (*domain.EmailTemplate, error) {
	if m == nil {
		return nil, nil
	}

	t := &domain.EmailTemplate{
		Name:       m.Name,
		TemplateID: m.TemplateID,
		From:       m.From,
	}

	fields := []struct {
		raw json.RawMessage
		dst any
	}{
		{m.CC, &t.CC},
		{m.BCC, &t.BCC},
		{m.ContactProperties, &t.ContactProperties},
		{m.CustomProperties, &t.CustomProperties},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func templateModelFromDomain(t *domain.EmailTemplate) (*EmailTemplateModel, error) {
	if t == nil {
		return nil, nil
	}

	m := &EmailTemplateModel{
		Name:       t.Name,
		TemplateID: t.TemplateID,
		From:       t.From,
	}

	fields := []struct {
		src any
		dst *json.RawMessage
	}{
		{t.CC, &m.CC},
		{t.BCC, &m.BCC},
		{t.ContactProperties, &m.ContactProperties},
		{t.CustomProperties, &m.CustomProperties},
	}
	for _, f := range fields {
		raw, err := json.Marshal(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = raw
	}

	return m, nil
}
