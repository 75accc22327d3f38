package email

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

// Message is the envelope of one transactional send. SendID deduplicates on
// the provider side: no more than one email with a given SendID goes out, so
// passing the notification id makes redelivery after a crashed run harmless.
type Message struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	CC     []string `json:"cc,omitempty"`
	BCC    []string `json:"bcc,omitempty"`
	SendID string   `json:"sendId"`
}

// NameValue is the provider wire shape for template properties.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SendRequest is the single-send API payload.
type SendRequest struct {
	TemplateID        string      `json:"emailId"`
	Message           Message     `json:"message"`
	ContactProperties []NameValue `json:"contactProperties,omitempty"`
	CustomProperties  []NameValue `json:"customProperties,omitempty"`
}

// SendClient is the outbound email provider port. Success is indicated by the
// returned status code (200).
type SendClient interface {
	Send(ctx context.Context, correlationID string, req SendRequest) (statusCode int, err error)
}

// RestSendClient talks to a HubSpot-compatible single-send email API.
type RestSendClient struct {
	client *resty.Client
}

func NewRestSendClient(baseURL, apiKey string) (*RestSendClient, error) {
	trimmedURL := strings.TrimSpace(baseURL)
	if trimmedURL == "" {
		return nil, fmt.Errorf("email base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid email base url: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("email api key is required")
	}

	client := resty.New()
	client.SetBaseURL(trimmedURL)
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)
	client.SetAuthToken(apiKey)

	return &RestSendClient{client: client}, nil
}

func NewRestSendClientWithClient(client *resty.Client) (*RestSendClient, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	return &RestSendClient{client: client}, nil
}

func (c *RestSendClient) Send(ctx context.Context, correlationID string, req SendRequest) (int, error) {
	if strings.TrimSpace(req.TemplateID) == "" {
		return 0, &downstream.CallError{Service: "email", Message: "template id is required"}
	}
	if strings.TrimSpace(req.Message.To) == "" {
		return 0, &downstream.CallError{Service: "email", Message: "recipient address is required"}
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Correlation-Id", correlationID).
		SetBody(req).
		Post("/email/v1/singleEmail/send")
	if err != nil {
		return 0, &downstream.CallError{Service: "email", Message: "send request failed", Cause: err}
	}

	statusCode := response.StatusCode()
	if statusCode == http.StatusOK {
		return statusCode, nil
	}

	return statusCode, &downstream.CallError{
		Service:    "email",
		StatusCode: statusCode,
		Message:    "send rejected",
	}
}
