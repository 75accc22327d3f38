package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/studyhub/notification-queue/internal/domain"
	"github.com/studyhub/notification-queue/internal/observability"
	"github.com/studyhub/notification-queue/internal/queue"
	"github.com/studyhub/notification-queue/internal/repository"
	"go.uber.org/zap"
)

// EnqueueService accepts notification records into the durable queue and
// nudges a worker to pick them up.
type EnqueueService struct {
	notifications repository.NotificationRepository
	publisher     queue.Publisher
	metrics       *observability.Metrics
	logger        *zap.Logger
}

func NewEnqueueService(
	notifications repository.NotificationRepository,
	publisher queue.Publisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*EnqueueService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EnqueueService{
		notifications: notifications,
		publisher:     publisher,
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// Create persists a new record in status new. The details payload is stored
// verbatim and never modified afterwards. A duplicate id yields ErrConflict.
func (s *EnqueueService) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if n == nil {
		return nil, fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	n.ID = strings.TrimSpace(n.ID)
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Label = strings.TrimSpace(n.Label)
	n.ProcessingStatus = domain.StatusNew
	n.ProcessingFailCount = 0
	n.ProcessingErrorMessage = nil

	if err := n.Validate(); err != nil {
		return nil, err
	}

	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, err
	}
	s.metrics.IncEnqueued(n.Type.String())

	s.publishTrigger(ctx, n)
	return n, nil
}

// publishTrigger is best-effort: a broker outage must not lose the record,
// the next scheduled run picks it up anyway.
func (s *EnqueueService) publishTrigger(ctx context.Context, n *domain.Notification) {
	if s.publisher == nil {
		return
	}

	correlationID, ok := observability.CorrelationIDFromContext(ctx)
	if !ok {
		correlationID = uuid.NewString()
	}

	msg := queue.ProcessTrigger{
		CorrelationID: correlationID,
		Source:        "api",
	}
	if err := s.publisher.Publish(ctx, queue.ProcessQueueName, msg); err != nil {
		s.logger.Warn("failed to publish process trigger",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
	}
}

func (s *EnqueueService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, strings.TrimSpace(id))
}

// List scans the table, optionally narrowed to one filterable field.
func (s *EnqueueService) List(ctx context.Context, filter *repository.ScanFilter) ([]domain.Notification, error) {
	return s.notifications.Scan(ctx, filter)
}

func (s *EnqueueService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.Delete(ctx, strings.TrimSpace(id))
}

// DeleteAll clears the whole table. Exposed for test environments only; the
// handler keeps it off production routes.
func (s *EnqueueService) DeleteAll(ctx context.Context) error {
	return s.notifications.DeleteAll(ctx)
}
