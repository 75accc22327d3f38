package service

import (
	"context"
	"fmt"
	"time"

	"github.com/studyhub/notification-queue/internal/domain"
	"github.com/studyhub/notification-queue/internal/observability"
	"github.com/studyhub/notification-queue/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRetentionWindow   = 7 * 24 * time.Hour
	defaultRetentionInterval = time.Hour
)

// SweepReport describes one retention pass, including the partial progress
// made before an aborting failure.
type SweepReport struct {
	Examined   int
	DeletedIDs []string
	Retained   int
}

// RetentionService removes processed notifications once they age out of the
// retention window. Transactional-email records are kept indefinitely as the
// send audit trail.
type RetentionService struct {
	notifications repository.NotificationRepository
	metrics       *observability.Metrics
	logger        *zap.Logger
	window        time.Duration
	interval      time.Duration
}

func NewRetentionService(
	notifications repository.NotificationRepository,
	window time.Duration,
	interval time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*RetentionService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if window <= 0 {
		window = defaultRetentionWindow
	}
	if interval <= 0 {
		interval = defaultRetentionInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetentionService{
		notifications: notifications,
		metrics:       metrics,
		logger:        logger,
		window:        window,
		interval:      interval,
	}, nil
}

// Sweep deletes processed records older than the window, one at a time. A
// delete failure aborts the pass; the report still lists what was removed
// before the failure.
func (s *RetentionService) Sweep(ctx context.Context) (*SweepReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	threshold := time.Now().UTC().Add(-s.window)
	candidates, err := s.notifications.GetProcessedOlderThan(ctx, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch retention candidates: %w", err)
	}

	report := &SweepReport{Examined: len(candidates)}
	for i := range candidates {
		notification := candidates[i]

		if notification.Type == domain.TypeTransactionalEmail {
			report.Retained++
			continue
		}
		// The fetch already filtered on the threshold; re-check in case the
		// record was touched while the sweep was underway.
		if !notification.UpdatedAt.Before(threshold) {
			report.Retained++
			continue
		}

		if err := s.notifications.Delete(ctx, notification.ID); err != nil {
			s.metrics.AddRetentionDeleted(len(report.DeletedIDs))
			return report, fmt.Errorf("retention sweep aborted after deleting %d of %d records: %w",
				len(report.DeletedIDs), report.Examined, err)
		}
		report.DeletedIDs = append(report.DeletedIDs, notification.ID)
	}

	s.metrics.AddRetentionDeleted(len(report.DeletedIDs))
	s.logger.Info("retention sweep finished",
		zap.Int("examined", report.Examined),
		zap.Int("deleted", len(report.DeletedIDs)),
		zap.Int("retained", report.Retained),
	)
	return report, nil
}

// Start runs a sweep on a fixed cadence until the context ends.
func (s *RetentionService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retention sweep failed", zap.Error(err))
			}
		}
	}
}
