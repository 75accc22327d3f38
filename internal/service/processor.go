package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/studyhub/notification-queue/internal/domain"
	"github.com/studyhub/notification-queue/internal/observability"
	"github.com/studyhub/notification-queue/internal/queue"
	"github.com/studyhub/notification-queue/internal/repository"
	"go.uber.org/zap"
)

const defaultProcessInterval = time.Minute

// Dispatcher routes one claimed notification to its downstream routine.
type Dispatcher interface {
	Dispatch(ctx context.Context, n domain.Notification, correlationID string) error
}

// Processor drains the pending notifications in one batch pass: fetch,
// partition by type, claim, dispatch, finalize.
type Processor struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	runs          repository.RunRepository
	dispatcher    Dispatcher
	metrics       *observability.Metrics
	logger        *zap.Logger
	maxRetries    int
	interval      time.Duration
}

func NewProcessor(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	runs repository.RunRepository,
	dispatcher Dispatcher,
	maxRetries int,
	interval time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Processor, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}
	if interval <= 0 {
		interval = defaultProcessInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Processor{
		notifications: notifications,
		attempts:      attempts,
		runs:          runs,
		dispatcher:    dispatcher,
		metrics:       metrics,
		logger:        logger,
		maxRetries:    maxRetries,
		interval:      interval,
	}, nil
}

// Run performs one processing pass. Dead-letter errors are collected and
// returned joined after the whole batch has been worked, so one poisoned
// record never blocks the rest.
//
// Registration records are worked to completion before any signup or login
// record; the later buckets depend on the crm_id a registration assigns.
func (p *Processor) Run(ctx context.Context, trigger string) (*domain.Run, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now().UTC()
	run := &domain.Run{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    domain.RunStatusRunning,
		StartedAt: start,
	}
	p.recordRunStart(ctx, run)

	pending, err := p.notifications.GetPending(ctx)
	if err != nil {
		p.finishRun(ctx, run, domain.RunStatusFailed, start)
		return run, fmt.Errorf("failed to fetch pending notifications: %w", err)
	}
	run.Fetched = len(pending)

	buckets, err := partitionByType(pending)
	if err != nil {
		// An unknown type means the fetcher and dispatcher disagree about the
		// world; stop before claiming anything.
		p.finishRun(ctx, run, domain.RunStatusFailed, start)
		return run, err
	}

	var dlqErrs []error
	for _, notificationType := range domain.DispatchOrder {
		for i := range buckets[notificationType] {
			notification := buckets[notificationType][i]
			deadErr := p.processOne(ctx, run, notification)
			if deadErr != nil {
				dlqErrs = append(dlqErrs, deadErr)
			}
		}
	}

	p.finishRun(ctx, run, domain.RunStatusCompleted, start)
	p.logger.Info("processing run finished",
		zap.String("runId", run.ID),
		zap.String("trigger", trigger),
		zap.Int("fetched", run.Fetched),
		zap.Int("processed", run.Processed),
		zap.Int("retried", run.Retried),
		zap.Int("deadLetter", run.DeadLetter),
		zap.Int("skipped", run.Skipped),
	)

	return run, errors.Join(dlqErrs...)
}

// processOne claims, dispatches and finalizes a single record. The returned
// error is non-nil only when the record was dead-lettered.
func (p *Processor) processOne(ctx context.Context, run *domain.Run, notification domain.Notification) error {
	correlationID := uuid.NewString()
	ctx = observability.WithCorrelationID(ctx, correlationID)
	logger := observability.WithContextLogger(p.logger, ctx)

	if err := p.notifications.Claim(ctx, notification.ID); err != nil {
		run.Skipped++
		if errors.Is(err, domain.ErrClaimConflict) {
			p.metrics.IncClaimConflict()
			logger.Info("notification already claimed by another run",
				zap.String("notificationId", notification.ID),
			)
			return nil
		}
		logger.Error("failed to claim notification",
			zap.String("notificationId", notification.ID),
			zap.Error(err),
		)
		return nil
	}

	procErr := p.dispatcher.Dispatch(ctx, notification, correlationID)
	outcome := domain.DecideOutcome(notification.ProcessingFailCount, p.maxRetries, procErr)

	if err := p.notifications.Finalize(ctx, notification.ID, outcome); err != nil {
		logger.Error("failed to finalize notification",
			zap.String("notificationId", notification.ID),
			zap.String("status", outcome.Status.String()),
			zap.Error(err),
		)
	}
	p.recordAttempt(ctx, notification, outcome, correlationID)

	switch outcome.Status {
	case domain.StatusProcessed:
		run.Processed++
		p.metrics.IncProcessed(notification.Type.String())
	case domain.StatusRetrying:
		run.Retried++
		p.metrics.IncRetried(notification.Type.String())
		logger.Warn("notification dispatch failed, will retry",
			zap.String("notificationId", notification.ID),
			zap.Int("failCount", outcome.FailCount),
			zap.Error(procErr),
		)
	case domain.StatusDLQ:
		run.DeadLetter++
		p.metrics.IncDeadLettered(notification.Type.String())
		logger.Error("notification dead-lettered",
			zap.String("notificationId", notification.ID),
			zap.Int("failCount", outcome.FailCount),
			zap.Error(procErr),
		)
		return fmt.Errorf("notification %s (%s) dead-lettered after %d failures: %w",
			notification.ID, notification.Type, outcome.FailCount, procErr)
	}

	return nil
}

// HandleTrigger adapts the processor to the queue consumer.
func (p *Processor) HandleTrigger(ctx context.Context, msg queue.ProcessTrigger) error {
	ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	_, err := p.Run(ctx, msg.Source)
	return err
}

// Start runs a processing pass on a fixed cadence until the context ends.
func (p *Processor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := p.Run(ctx, "startup"); err != nil && ctx.Err() == nil {
		p.logger.Error("initial processing run failed", zap.Error(err))
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.Run(ctx, "schedule"); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.logger.Error("scheduled processing run failed", zap.Error(err))
			}
		}
	}
}

func (p *Processor) recordRunStart(ctx context.Context, run *domain.Run) {
	if p.runs == nil {
		return
	}
	if err := p.runs.Create(ctx, run); err != nil {
		p.logger.Error("failed to record processing run", zap.String("runId", run.ID), zap.Error(err))
	}
}

func (p *Processor) finishRun(ctx context.Context, run *domain.Run, status domain.RunStatus, start time.Time) {
	finished := time.Now().UTC()
	run.Status = status
	run.FinishedAt = &finished
	p.metrics.ObserveProcessingRun(finished.Sub(start), run.Fetched)

	if p.runs == nil {
		return
	}
	if err := p.runs.Finish(ctx, run); err != nil {
		p.logger.Error("failed to finish processing run", zap.String("runId", run.ID), zap.Error(err))
	}
}

func (p *Processor) recordAttempt(ctx context.Context, n domain.Notification, outcome domain.Outcome, correlationID string) {
	if p.attempts == nil {
		return
	}

	attempt := &domain.ProcessingAttempt{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		AttemptNumber:  n.ProcessingFailCount + 1,
		Outcome:        outcome.Status,
		Error:          outcome.ErrorMessage,
		CorrelationID:  correlationID,
	}
	if err := p.attempts.Create(ctx, attempt); err != nil {
		p.logger.Error("failed to record processing attempt",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
	}
}

func partitionByType(pending []domain.Notification) (map[domain.Type][]domain.Notification, error) {
	buckets := make(map[domain.Type][]domain.Notification, len(domain.DispatchOrder))
	for i := range pending {
		notification := pending[i]
		if !notification.Type.IsValid() {
			return nil, fmt.Errorf("%w: notification %s has type %q",
				domain.ErrUnknownType, notification.ID, notification.Type)
		}
		buckets[notification.Type] = append(buckets[notification.Type], notification)
	}
	return buckets, nil
}
