package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/studyhub/notification-queue/internal/domain"
	"gorm.io/gorm"
)

// ScanFilter narrows a full table scan to rows whose field equals one of the
// given values. Field must be one of the whitelisted scan columns.
type ScanFilter struct {
	Field  string
	Values []string
}

var scanColumns = map[string]string{
	"type":              "type",
	"label":             "label",
	"processing_status": "processing_status",
}

// NotificationRepository is the durable store for notification records.
//
// Claim is the only cross-run synchronization primitive in the system: it is a
// single conditional UPDATE, never a read followed by a write, so exactly one
// of any number of concurrent claimers wins a given record.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	Claim(ctx context.Context, id string) error
	Finalize(ctx context.Context, id string, outcome domain.Outcome) error
	GetPending(ctx context.Context) ([]domain.Notification, error)
	GetProcessedOlderThan(ctx context.Context, threshold time.Time) ([]domain.Notification, error)
	Scan(ctx context.Context, filter *ScanFilter) ([]domain.Notification, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolationError(err) {
			return fmt.Errorf("%w: notification %s already exists", domain.ErrConflict, n.ID)
		}
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
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

// Claim conditionally moves a record into processing. The status guard runs
// inside the UPDATE itself; a concurrent claimer or a terminal record leaves
// zero rows affected and the caller gets ErrClaimConflict.
func (r *GormNotificationRepo) Claim(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND processing_status IN ?", id, []domain.Status{domain.StatusNew, domain.StatusRetrying}).
		Update("processing_status", domain.StatusProcessing)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: notification %s", domain.ErrClaimConflict, id)
	}
	return nil
}

// Finalize writes the decided outcome. No status precondition: a finalize
// always follows a successful claim by the same run.
func (r *GormNotificationRepo) Finalize(ctx context.Context, id string, outcome domain.Outcome) error {
	updates := map[string]any{
		"processing_status":     outcome.Status,
		"processing_fail_count": outcome.FailCount,
	}
	if outcome.ErrorMessage != nil {
		updates["processing_error_message"] = *outcome.ErrorMessage
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) GetPending(ctx context.Context) ([]domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("processing_status IN ?", []domain.Status{domain.StatusNew, domain.StatusRetrying}).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return notificationModelsToDomain(models), nil
}

func (r *GormNotificationRepo) GetProcessedOlderThan(ctx context.Context, threshold time.Time) ([]domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("processing_status = ? AND updated_at < ?", domain.StatusProcessed, threshold).
		Order("updated_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return notificationModelsToDomain(models), nil
}

func (r *GormNotificationRepo) Scan(ctx context.Context, filter *ScanFilter) ([]domain.Notification, error) {
	query := r.db.WithContext(ctx).Model(&NotificationModel{})

	if filter != nil {
		column, ok := scanColumns[strings.TrimSpace(filter.Field)]
		if !ok {
			return nil, fmt.Errorf("%w: cannot filter scan on field %q", domain.ErrValidation, filter.Field)
		}
		if len(filter.Values) == 0 {
			return nil, fmt.Errorf("%w: scan filter needs at least one value", domain.ErrValidation)
		}
		query = query.Where(fmt.Sprintf("%s IN ?", column), filter.Values)
	}

	var models []NotificationModel
	if err := query.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return notificationModelsToDomain(models), nil
}

func (r *GormNotificationRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&NotificationModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&NotificationModel{}).Error
}

func notificationModelsToDomain(models []NotificationModel) []domain.Notification {
	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}
	return notifications
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
