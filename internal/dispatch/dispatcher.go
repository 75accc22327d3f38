package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/studyhub/notification-queue/internal/crm"
	"github.com/studyhub/notification-queue/internal/directory"
	"github.com/studyhub/notification-queue/internal/domain"
	"github.com/studyhub/notification-queue/internal/downstream"
	"github.com/studyhub/notification-queue/internal/email"
	"github.com/studyhub/notification-queue/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	signupEventType = "Sign-up"

	// processingTestCounterKey tracks how many concurrent runs managed to
	// process a processing-test record. Exactly one claim should win, so the
	// counter lets tests observe double-processing.
	processingTestCounterKey = "notifications:processing-test:attempts"

	defaultTestWorkDelay = 5 * time.Second
)

// EmailSender delivers one transactional email; success is HTTP 200.
type EmailSender interface {
	Send(ctx context.Context, correlationID, sendID string, details *email.Details, recipient domain.Recipient) (int, error)
}

// Dispatcher routes a claimed notification to the downstream routine for its
// type. Handlers return nil on success; any error drives the retry/dead-letter
// decision of the caller.
type Dispatcher struct {
	crm       crm.Client
	directory directory.Client
	email     EmailSender
	limiter   ratelimit.RateLimiter
	redis     *goredis.Client
	logger    *zap.Logger

	testWorkDelay time.Duration
}

func NewDispatcher(
	crmClient crm.Client,
	directoryClient directory.Client,
	emailSender EmailSender,
	limiter ratelimit.RateLimiter,
	redisClient *goredis.Client,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if crmClient == nil {
		return nil, fmt.Errorf("crm client is required")
	}
	if directoryClient == nil {
		return nil, fmt.Errorf("directory client is required")
	}
	if emailSender == nil {
		return nil, fmt.Errorf("email sender is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		crm:           crmClient,
		directory:     directoryClient,
		email:         emailSender,
		limiter:       limiter,
		redis:         redisClient,
		logger:        logger,
		testWorkDelay: defaultTestWorkDelay,
	}, nil
}

// Dispatch runs the handler for the notification type. An unknown type is
// fatal for the whole batch, never a per-record failure.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.Notification, correlationID string) error {
	switch n.Type {
	case domain.TypeUserRegistration:
		return d.handleUserRegistration(ctx, n, correlationID)
	case domain.TypeTaskSignup:
		return d.handleTaskSignup(ctx, n, correlationID)
	case domain.TypeUserLogin:
		return d.handleUserLogin(ctx, n, correlationID)
	case domain.TypeTransactionalEmail:
		return d.handleTransactionalEmail(ctx, n, correlationID)
	case domain.TypeProcessingTest:
		return d.handleProcessingTest(ctx, n)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownType, n.Type)
	}
}

type registrationDetails struct {
	UserID      string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CountryName string `json:"country_name"`
}

// handleUserRegistration upserts the contact in the CRM, then patches the
// assigned CRM id back onto the directory user record.
func (d *Dispatcher) handleUserRegistration(ctx context.Context, n domain.Notification, correlationID string) error {
	var details registrationDetails
	if err := json.Unmarshal(n.Details, &details); err != nil {
		return fmt.Errorf("%w: malformed registration details: %v", domain.ErrValidation, err)
	}

	d.logger.Info("posting user registration to crm",
		zap.String("notificationId", n.ID),
		zap.String("userId", details.UserID),
		zap.String("email", details.Email),
		zap.String("correlationId", correlationID),
	)

	if err := d.waitCRM(ctx); err != nil {
		return err
	}
	crmID, isNew, err := d.crm.UpsertContact(ctx, correlationID, crm.Contact{
		Email:       details.Email,
		FirstName:   details.FirstName,
		LastName:    details.LastName,
		CountryName: details.CountryName,
		UserID:      details.UserID,
	})
	if err != nil {
		return err
	}
	if crmID == crm.NotFoundID {
		return fmt.Errorf("%w: could not find user %s in CRM after upsert", domain.ErrIntegrity, details.UserID)
	}

	d.logger.Info("crm contact upserted",
		zap.String("notificationId", n.ID),
		zap.Int64("crmId", crmID),
		zap.Bool("isNew", isNew),
		zap.String("correlationId", correlationID),
	)

	return d.directory.PatchUserCRMID(ctx, correlationID, details.UserID, strconv.FormatInt(crmID, 10))
}

// handleTaskSignup posts a signup timeline event. The payload's extra_data is
// folded into the event properties; a missing crm_id is resolved through the
// directory before the post.
func (d *Dispatcher) handleTaskSignup(ctx context.Context, n domain.Notification, correlationID string) error {
	var properties map[string]any
	if err := json.Unmarshal(n.Details, &properties); err != nil {
		return fmt.Errorf("%w: malformed signup details: %v", domain.ErrValidation, err)
	}

	if extra, ok := properties["extra_data"].(map[string]any); ok {
		delete(properties, "extra_data")
		for key, value := range extra {
			properties[key] = value
		}
	}
	properties["signup_event_type"] = signupEventType

	crmID, _ := properties["crm_id"].(string)
	if crmID == "" {
		userID, _ := properties["user_id"].(string)
		user, err := d.directory.GetUserByID(ctx, correlationID, userID)
		if err != nil {
			return err
		}
		if user.CRMID == nil || *user.CRMID == "" {
			return fmt.Errorf("%w: user %s does not have a crm_id yet", domain.ErrIntegrity, userID)
		}
		crmID = *user.CRMID
		properties["crm_id"] = crmID
	}

	if err := d.waitCRM(ctx); err != nil {
		return err
	}
	statusCode, err := d.crm.PostTimelineEvent(ctx, correlationID, crm.TimelineEvent{
		EventType:  domain.TypeTaskSignup.String(),
		ContactID:  crmID,
		Properties: properties,
	})
	if err != nil {
		return err
	}
	if statusCode != http.StatusNoContent {
		return &downstream.CallError{Service: "crm", StatusCode: statusCode, Message: "unexpected signup event status"}
	}
	return nil
}

// handleUserLogin posts a login timeline event straight from the payload.
func (d *Dispatcher) handleUserLogin(ctx context.Context, n domain.Notification, correlationID string) error {
	var properties map[string]any
	if err := json.Unmarshal(n.Details, &properties); err != nil {
		return fmt.Errorf("%w: malformed login details: %v", domain.ErrValidation, err)
	}

	if err := d.waitCRM(ctx); err != nil {
		return err
	}
	statusCode, err := d.crm.PostTimelineEvent(ctx, correlationID, crm.TimelineEvent{
		EventType:  domain.TypeUserLogin.String(),
		Properties: properties,
	})
	if err != nil {
		return err
	}
	if statusCode != http.StatusNoContent {
		return &downstream.CallError{Service: "crm", StatusCode: statusCode, Message: "unexpected login event status"}
	}
	return nil
}

func (d *Dispatcher) handleTransactionalEmail(ctx context.Context, n domain.Notification, correlationID string) error {
	details, recipient, err := email.ParseDetails(n.Details)
	if err != nil {
		return err
	}

	_, err = d.email.Send(ctx, correlationID, n.ID, details, recipient)
	return err
}

// handleProcessingTest simulates a slow downstream routine. The shared counter
// plus the delay widen the race window so concurrent runs exercise claim
// mutual exclusion.
func (d *Dispatcher) handleProcessingTest(ctx context.Context, n domain.Notification) error {
	if d.redis != nil {
		count, err := d.redis.Incr(ctx, processingTestCounterKey).Result()
		if err != nil {
			return fmt.Errorf("failed to record processing attempt: %w", err)
		}
		d.logger.Info("processing test attempt recorded",
			zap.String("notificationId", n.ID),
			zap.Int64("attempts", count),
		)
	}

	timer := time.NewTimer(d.testWorkDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Dispatcher) waitCRM(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	if err := d.limiter.Wait(ctx, "crm"); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}
