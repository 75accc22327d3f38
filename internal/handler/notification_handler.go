package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/studyhub/notification-queue/internal/domain"
	"github.com/studyhub/notification-queue/internal/repository"
)

type NotificationService interface {
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, filter *repository.ScanFilter) ([]domain.Notification, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

// ProcessService runs one processing pass on demand.
type ProcessService interface {
	Run(ctx context.Context, trigger string) (*domain.Run, error)
}

type NotificationHandler struct {
	service   NotificationService
	processor ProcessService
}

func NewNotificationHandler(service NotificationService, processor ProcessService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("process service is required")
	}
	return &NotificationHandler{service: service, processor: processor}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService, processor ProcessService) error {
	h, err := NewNotificationHandler(service, processor)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Delete("/notifications/:id", h.DeleteNotification)
	v1.Delete("/notifications", h.DeleteAllNotifications)
	v1.Post("/process", h.TriggerProcessing)

	return nil
}

type createNotificationRequest struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Label   string          `json:"label"`
	Details json.RawMessage `json:"details"`
}

type notificationResponse struct {
	ID                     string          `json:"id"`
	Type                   string          `json:"type"`
	Label                  string          `json:"label"`
	Details                json.RawMessage `json:"details"`
	ProcessingStatus       string          `json:"processingStatus"`
	ProcessingFailCount    int             `json:"processingFailCount"`
	ProcessingErrorMessage *string         `json:"processingErrorMessage,omitempty"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

type listNotificationsResponse struct {
	Data  []notificationResponse `json:"data"`
	Total int                    `json:"total"`
}

type processRunResponse struct {
	RunID      string  `json:"runId"`
	Status     string  `json:"status"`
	Fetched    int     `json:"fetched"`
	Processed  int     `json:"processed"`
	Retried    int     `json:"retried"`
	DeadLetter int     `json:"deadLetter"`
	Skipped    int     `json:"skipped"`
	Errors     *string `json:"errors,omitempty"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notificationType, err := domain.ParseTypeFromString(req.Type)
	if err != nil {
		return toHTTPError(err)
	}

	notification := domain.Notification{
		ID:      strings.TrimSpace(req.ID),
		Type:    notificationType,
		Label:   strings.TrimSpace(req.Label),
		Details: req.Details,
	}

	created, err := h.service.Create(c.Context(), &notification)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toNotificationResponse(created))
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	notification, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	filter, err := parseScanFilter(c)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, err := h.service.List(c.Context(), filter)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data:  toNotificationResponses(notifications),
		Total: len(notifications),
	})
}

func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Delete(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) DeleteAllNotifications(c *fiber.Ctx) error {
	if err := h.service.DeleteAll(c.Context()); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TriggerProcessing runs one pass synchronously and reports the run summary.
// Dead-letter failures are part of the summary, not an HTTP error: the pass
// itself completed.
func (h *NotificationHandler) TriggerProcessing(c *fiber.Ctx) error {
	run, err := h.processor.Run(c.Context(), "api")
	if err != nil && run != nil && run.Status == domain.RunStatusFailed {
		return toHTTPError(err)
	}

	response := processRunResponse{
		RunID:      run.ID,
		Status:     run.Status.String(),
		Fetched:    run.Fetched,
		Processed:  run.Processed,
		Retried:    run.Retried,
		DeadLetter: run.DeadLetter,
		Skipped:    run.Skipped,
	}
	if err != nil {
		msg := err.Error()
		response.Errors = &msg
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// parseScanFilter accepts at most one of the filterable query params.
func parseScanFilter(c *fiber.Ctx) (*repository.ScanFilter, error) {
	var filter *repository.ScanFilter
	for _, field := range []string{"type", "label", "processing_status"} {
		value := strings.TrimSpace(c.Query(field))
		if value == "" {
			continue
		}
		if filter != nil {
			return nil, fmt.Errorf("%w: at most one filter may be given", domain.ErrValidation)
		}
		filter = &repository.ScanFilter{Field: field, Values: strings.Split(value, ",")}
	}
	return filter, nil
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		n := notification
		responses = append(responses, toNotificationResponse(&n))
	}
	return responses
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:                     n.ID,
		Type:                   n.Type.String(),
		Label:                  n.Label,
		Details:                n.Details,
		ProcessingStatus:       n.ProcessingStatus.String(),
		ProcessingFailCount:    n.ProcessingFailCount,
		ProcessingErrorMessage: n.ProcessingErrorMessage,
		CreatedAt:              n.CreatedAt,
		UpdatedAt:              n.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
