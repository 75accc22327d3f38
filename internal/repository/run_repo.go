package repository

import (
	"context"
	"errors"

	"github.com/studyhub/notification-queue/internal/domain"
	"gorm.io/gorm"
)

// RunRepository persists one summary row per processing run.
type RunRepository interface {
	Create(ctx context.Context, run *domain.Run) error
	Finish(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id string) (*domain.Run, error)
}

type GormRunRepo struct {
	db *gorm.DB
}

func NewGormRunRepo(db *gorm.DB) *GormRunRepo {
	return &GormRunRepo{db: db}
}

func (r *GormRunRepo) Create(ctx context.Context, run *domain.Run) error {
	return r.db.WithContext(ctx).Create(runModelFromDomain(run)).Error
}

func (r *GormRunRepo) Finish(ctx context.Context, run *domain.Run) error {
	result := r.db.WithContext(ctx).
		Model(&RunModel{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":      run.Status,
			"fetched":     run.Fetched,
			"processed":   run.Processed,
			"retried":     run.Retried,
			"dead_letter": run.DeadLetter,
			"skipped":     run.Skipped,
			"finished_at": run.FinishedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormRunRepo) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	var model RunModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &domain.Run{
		ID:         model.ID,
		Trigger:    model.Trigger,
		Status:     model.Status,
		Fetched:    model.Fetched,
		Processed:  model.Processed,
		Retried:    model.Retried,
		DeadLetter: model.DeadLetter,
		Skipped:    model.Skipped,
		StartedAt:  model.StartedAt,
		FinishedAt: model.FinishedAt,
	}, nil
}
