package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/studyhub/notification-queue/internal/domain"
	"gorm.io/gorm"
)

// TemplateRepository resolves transactional email templates by name.
type TemplateRepository interface {
	GetByName(ctx context.Context, name string) (*domain.EmailTemplate, error)
	Upsert(ctx context.Context, template *domain.EmailTemplate) error
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) GetByName(ctx context.Context, name string) (*domain.EmailTemplate, error) {
	var model EmailTemplateModel
	err := r.db.WithContext(ctx).First(&model, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: email template %q", domain.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model)
}

func (r *GormTemplateRepo) Upsert(ctx context.Context, template *domain.EmailTemplate) error {
	if err := template.Validate(); err != nil {
		return err
	}

	model, err := templateModelFromDomain(template)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}
