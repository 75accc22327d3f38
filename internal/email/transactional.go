package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/studyhub/notification-queue/internal/directory"
	"github.com/studyhub/notification-queue/internal/domain"
	"github.com/studyhub/notification-queue/internal/ratelimit"
	"go.uber.org/zap"
)

// Details is the payload of a transactional-email notification.
type Details struct {
	TemplateName      string            `json:"template_name"`
	ToRecipientID     string            `json:"to_recipient_id,omitempty"`
	ToRecipientEmail  string            `json:"to_recipient_email,omitempty"`
	ContactProperties map[string]string `json:"contact_properties,omitempty"`
	CustomProperties  map[string]string `json:"custom_properties,omitempty"`
}

// ParseDetails decodes and minimally validates a transactional-email payload.
// The recipient sum type is resolved here, once, at the parsing boundary.
func ParseDetails(raw json.RawMessage) (*Details, domain.Recipient, error) {
	var details Details
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, domain.Recipient{}, fmt.Errorf("%w: malformed email details: %v", domain.ErrValidation, err)
	}
	if details.TemplateName == "" {
		return nil, domain.Recipient{}, fmt.Errorf("%w: template_name must be present", domain.ErrValidation)
	}

	recipient, err := domain.ParseRecipient(details.ToRecipientID, details.ToRecipientEmail)
	if err != nil {
		return nil, domain.Recipient{}, err
	}
	return &details, recipient, nil
}

// TemplateStore resolves template definitions by name.
type TemplateStore interface {
	GetByName(ctx context.Context, name string) (*domain.EmailTemplate, error)
}

// Service resolves the template, validates properties, resolves the recipient
// address and posts the send.
type Service struct {
	templates TemplateStore
	directory directory.Client
	sender    SendClient
	limiter   ratelimit.RateLimiter
	logger    *zap.Logger
}

func NewService(
	templates TemplateStore,
	directoryClient directory.Client,
	sender SendClient,
	limiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*Service, error) {
	if templates == nil {
		return nil, fmt.Errorf("template store is required")
	}
	if directoryClient == nil {
		return nil, fmt.Errorf("directory client is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("send client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		templates: templates,
		directory: directoryClient,
		sender:    sender,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

// Send delivers one transactional email. sendID is the notification id and
// doubles as the provider-side deduplication key.
func (s *Service) Send(ctx context.Context, correlationID, sendID string, details *Details, recipient domain.Recipient) (int, error) {
	template, err := s.templates.GetByName(ctx, details.TemplateName)
	if err != nil {
		return 0, err
	}

	resolver := newPropertyResolver(s, correlationID, details, recipient)

	contactProps, err := resolver.resolve(ctx, "contact", template.ContactProperties, details.ContactProperties)
	if err != nil {
		return 0, err
	}
	customProps, err := resolver.resolve(ctx, "custom", template.CustomProperties, details.CustomProperties)
	if err != nil {
		return 0, err
	}

	toAddress, err := s.resolveAddress(ctx, correlationID, recipient)
	if err != nil {
		return 0, err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, "email"); err != nil {
			return 0, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	statusCode, err := s.sender.Send(ctx, correlationID, SendRequest{
		TemplateID: template.TemplateID,
		Message: Message{
			From:   template.From,
			To:     toAddress,
			CC:     template.CC,
			BCC:    template.BCC,
			SendID: sendID,
		},
		ContactProperties: contactProps,
		CustomProperties:  customProps,
	})
	if err != nil {
		return statusCode, err
	}
	if statusCode != http.StatusOK {
		return statusCode, fmt.Errorf("email send returned unexpected status %d", statusCode)
	}

	s.logger.Info("transactional email sent",
		zap.String("template", template.Name),
		zap.String("sendId", sendID),
		zap.String("correlationId", correlationID),
	)
	return statusCode, nil
}

// resolveAddress turns the recipient sum type into a literal address. An id
// recipient must resolve to a directory user that already has a CRM id.
func (s *Service) resolveAddress(ctx context.Context, correlationID string, recipient domain.Recipient) (string, error) {
	if address, ok := recipient.Email(); ok {
		return address, nil
	}

	userID, _ := recipient.UserID()
	user, err := s.directory.GetUserByID(ctx, correlationID, userID)
	if err != nil {
		return "", err
	}
	if user.CRMID == nil || *user.CRMID == "" {
		return "", fmt.Errorf("%w: recipient %s does not have a CRM id", domain.ErrIntegrity, userID)
	}
	return user.Email, nil
}

// propertyResolver fills required template properties from the payload or,
// when absent, from a fixed set of directory lookups. User state is cached so
// several lookups cost one directory call.
type propertyResolver struct {
	service       *Service
	correlationID string
	details       *Details
	recipient     domain.Recipient

	user     *directory.User
	lookedUp map[string]bool
}

func newPropertyResolver(s *Service, correlationID string, details *Details, recipient domain.Recipient) *propertyResolver {
	return &propertyResolver{
		service:       s,
		correlationID: correlationID,
		details:       details,
		recipient:     recipient,
		lookedUp:      map[string]bool{},
	}
}

func (r *propertyResolver) resolve(ctx context.Context, kind string, specs []domain.PropertySpec, supplied map[string]string) ([]NameValue, error) {
	allowed := make(map[string]bool, len(specs))
	resolved := make(map[string]string, len(supplied))
	for name, value := range supplied {
		resolved[name] = value
	}

	for _, spec := range specs {
		allowed[spec.Name] = true
		if !spec.Required {
			continue
		}

		value, ok := resolved[spec.Name]
		if !ok {
			looked, err := r.lookup(ctx, spec.Name)
			if err != nil {
				return nil, err
			}
			if looked == nil {
				return nil, fmt.Errorf("%w: required %s property %s not found in email details",
					domain.ErrValidation, kind, spec.Name)
			}
			value = *looked
			resolved[spec.Name] = value
		}
		if value == "" {
			return nil, fmt.Errorf("%w: required %s property %s cannot be empty",
				domain.ErrValidation, kind, spec.Name)
		}
	}

	// Everything supplied must be either a template property or a value the
	// resolver consumed for a lookup.
	for name := range supplied {
		if !allowed[name] && !r.lookedUp[name] {
			return nil, fmt.Errorf("%w: %s property %s is not specified in email template %s",
				domain.ErrIntegrity, kind, name, r.details.TemplateName)
		}
	}

	return toNameValues(resolved), nil
}

func (r *propertyResolver) lookup(ctx context.Context, name string) (*string, error) {
	switch name {
	case "user_email":
		user, err := r.getUser(ctx)
		if err != nil {
			return nil, err
		}
		return &user.Email, nil
	case "user_first_name":
		user, err := r.getUser(ctx)
		if err != nil {
			return nil, err
		}
		return &user.FirstName, nil
	case "user_last_name":
		user, err := r.getUser(ctx)
		if err != nil {
			return nil, err
		}
		return &user.LastName, nil
	case "project_name":
		r.lookedUp["project_task_id"] = true
		taskID := r.details.CustomProperties["project_task_id"]
		if taskID == "" {
			return nil, fmt.Errorf("%w: project_name lookup needs custom property project_task_id", domain.ErrValidation)
		}
		projectName, err := r.service.directory.GetProjectName(ctx, r.correlationID, taskID)
		if err != nil {
			return nil, err
		}
		return &projectName, nil
	default:
		return nil, nil
	}
}

func (r *propertyResolver) getUser(ctx context.Context) (*directory.User, error) {
	if r.user != nil {
		return r.user, nil
	}

	userID, ok := r.recipient.UserID()
	if !ok {
		return nil, fmt.Errorf("%w: property lookup needs to_recipient_id", domain.ErrValidation)
	}

	user, err := r.service.directory.GetUserByID(ctx, r.correlationID, userID)
	if err != nil {
		return nil, err
	}
	r.user = user
	return user, nil
}

func toNameValues(values map[string]string) []NameValue {
	if len(values) == 0 {
		return nil
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]NameValue, 0, len(names))
	for _, name := range names {
		out = append(out, NameValue{Name: name, Value: values[name]})
	}
	return out
}
