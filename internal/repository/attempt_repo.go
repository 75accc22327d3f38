package repository

import (
	"context"

	"github.com/studyhub/notification-queue/internal/domain"
	"gorm.io/gorm"
)

// AttemptRepository records one row per dispatch attempt for audit.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *domain.ProcessingAttempt) error
	ListByNotificationID(ctx context.Context, notificationID string) ([]domain.ProcessingAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, attempt *domain.ProcessingAttempt) error {
	model := attemptModelFromDomain(attempt)
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormAttemptRepo) ListByNotificationID(ctx context.Context, notificationID string) ([]domain.ProcessingAttempt, error) {
	var models []ProcessingAttemptModel
	err := r.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.ProcessingAttempt, 0, len(models))
	for i := range models {
		m := models[i]
		attempts = append(attempts, domain.ProcessingAttempt{
			ID:             m.ID,
			NotificationID: m.NotificationID,
			AttemptNumber:  m.AttemptNumber,
			Outcome:        m.Outcome,
			Error:          m.Error,
			CorrelationID:  m.CorrelationID,
			CreatedAt:      m.CreatedAt,
		})
	}
	return attempts, nil
}
