package crm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/studyhub/notification-queue/internal/downstream"
)

const defaultTimeout = 30 * time.Second

// NotFoundID is the sentinel contact id the CRM returns when a contact could
// not be located after an upsert.
const NotFoundID int64 = -1

// Contact carries the fields posted on a contact create-or-update.
type Contact struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CountryName string `json:"country_name"`
	UserID      string `json:"external_id"`
}

// TimelineEvent is one activity posted to a contact timeline.
type TimelineEvent struct {
	EventType  string         `json:"event_type"`
	ContactID  string         `json:"contact_id,omitempty"`
	Properties map[string]any `json:"properties"`
}

// Client is the outbound CRM port used by the dispatch handlers.
type Client interface {
	UpsertContact(ctx context.Context, correlationID string, contact Contact) (crmID int64, isNew bool, err error)
	PostTimelineEvent(ctx context.Context, correlationID string, event TimelineEvent) (statusCode int, err error)
}

type upsertResponse struct {
	VID   int64 `json:"vid"`
	IsNew bool  `json:"isNew"`
}

// RestClient talks to a HubSpot-compatible CRM REST API.
type RestClient struct {
	client *resty.Client
}

func NewRestClient(baseURL, apiKey string) (*RestClient, error) {
	trimmedURL := strings.TrimSpace(baseURL)
	if trimmedURL == "" {
		return nil, fmt.Errorf("crm base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid crm base url: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("crm api key is required")
	}

	client := resty.New()
	client.SetBaseURL(trimmedURL)
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)
	client.SetAuthToken(apiKey)

	return &RestClient{client: client}, nil
}

func NewRestClientWithClient(client *resty.Client) (*RestClient, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	return &RestClient{client: client}, nil
}

func (c *RestClient) UpsertContact(ctx context.Context, correlationID string, contact Contact) (int64, bool, error) {
	if strings.TrimSpace(contact.Email) == "" {
		return 0, false, &downstream.CallError{Service: "crm", Message: "contact email is required"}
	}

	var parsed upsertResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Correlation-Id", correlationID).
		SetBody(contact).
		SetResult(&parsed).
		Post(fmt.Sprintf("/contacts/v1/contact/createOrUpdate/email/%s", url.PathEscape(contact.Email)))
	if err != nil {
		return 0, false, &downstream.CallError{Service: "crm", Message: "contact upsert request failed", Cause: err}
	}

	if response.StatusCode() != http.StatusOK {
		return 0, false, &downstream.CallError{
			Service:    "crm",
			StatusCode: response.StatusCode(),
			Message:    "contact upsert rejected",
		}
	}

	return parsed.VID, parsed.IsNew, nil
}

func (c *RestClient) PostTimelineEvent(ctx context.Context, correlationID string, event TimelineEvent) (int, error) {
	if strings.TrimSpace(event.EventType) == "" {
		return 0, &downstream.CallError{Service: "crm", Message: "timeline event type is required"}
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Correlation-Id", correlationID).
		SetBody(event).
		Post("/timeline/v1/events")
	if err != nil {
		return 0, &downstream.CallError{Service: "crm", Message: "timeline event request failed", Cause: err}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return statusCode, nil
	}

	return statusCode, &downstream.CallError{
		Service:    "crm",
		StatusCode: statusCode,
		Message:    "timeline event rejected",
	}
}
