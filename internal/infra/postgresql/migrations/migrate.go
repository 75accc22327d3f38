package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/studyhub/notification-queue/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_notifications",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
					return err
				}
				indexes := []string{
					// GetPending and GetProcessedOlderThan both filter on status first.
					`CREATE INDEX IF NOT EXISTS idx_notifications_status_created ON notifications (processing_status, created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_status_updated ON notifications (processing_status, updated_at)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.NotificationModel{})
			},
		},
		{
			ID: "000002_create_processing_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.ProcessingAttemptModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_notification_id ON processing_attempts (notification_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ProcessingAttemptModel{})
			},
		},
		{
			ID: "000003_create_processing_runs",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.RunModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.RunModel{})
			},
		},
		{
			ID: "000004_create_email_templates",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.EmailTemplateModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.EmailTemplateModel{})
			},
		},
	})

	return m.Migrate()
}
