package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/studyhub/notification-queue/internal/domain"
	"github.com/studyhub/notification-queue/internal/downstream"
)

const defaultTimeout = 15 * time.Second

// User is the directory view of a platform account.
type User struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	CRMID     *string `json:"crm_id"`
}

// Client is the user-directory port: user lookup by id (with an anonymous
// project-specific id fallback) and the crm-id patch posted after a
// registration reaches the CRM.
type Client interface {
	GetUserByID(ctx context.Context, correlationID, userID string) (*User, error)
	PatchUserCRMID(ctx context.Context, correlationID, userID, crmID string) error
	GetProjectName(ctx context.Context, correlationID, projectTaskID string) (string, error)
}

// RestClient talks to the core platform user API.
type RestClient struct {
	client *resty.Client
}

func NewRestClient(baseURL, apiKey string) (*RestClient, error) {
	trimmedURL := strings.TrimSpace(baseURL)
	if trimmedURL == "" {
		return nil, fmt.Errorf("directory base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid directory base url: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(trimmedURL)
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)
	if strings.TrimSpace(apiKey) != "" {
		client.SetHeader("X-Api-Key", apiKey)
	}

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

// GetUserByID looks a user up by user id first, then by anonymous
// project-specific user id. Both missing yields ErrNotFound.
func (c *RestClient) GetUserByID(ctx context.Context, correlationID, userID string) (*User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &downstream.CallError{Service: "directory", Message: "user id is required"}
	}

	user, err := c.getUser(ctx, correlationID, "user_id", userID)
	if err == nil {
		return user, nil
	}
	if !isNotFoundStatus(err) {
		return nil, err
	}

	user, err = c.getUser(ctx, correlationID, "anon_project_specific_user_id", userID)
	if err == nil {
		return user, nil
	}
	if isNotFoundStatus(err) {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	return nil, err
}

func (c *RestClient) getUser(ctx context.Context, correlationID, queryKey, queryValue string) (*User, error) {
	var user User
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Correlation-Id", correlationID).
		SetQueryParam(queryKey, queryValue).
		SetResult(&user).
		Get("/v1/users")
	if err != nil {
		return nil, &downstream.CallError{Service: "directory", Message: "user lookup request failed", Cause: err}
	}

	if response.StatusCode() != http.StatusOK {
		return nil, &downstream.CallError{
			Service:    "directory",
			StatusCode: response.StatusCode(),
			Message:    "user lookup rejected",
		}
	}
	return &user, nil
}

// PatchUserCRMID replaces the crm_id of a user record after the CRM assigned one.
func (c *RestClient) PatchUserCRMID(ctx context.Context, correlationID, userID, crmID string) error {
	patch := []map[string]string{
		{"op": "replace", "path": "/crm_id", "value": crmID},
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Correlation-Id", correlationID).
		SetHeader("Content-Type", "application/json-patch+json").
		SetBody(patch).
		Patch(fmt.Sprintf("/v1/users/%s", url.PathEscape(userID)))
	if err != nil {
		return &downstream.CallError{Service: "directory", Message: "user patch request failed", Cause: err}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &downstream.CallError{
		Service:    "directory",
		StatusCode: statusCode,
		Message:    "user patch rejected",
	}
}

// GetProjectName resolves the display name of the project a task belongs to.
func (c *RestClient) GetProjectName(ctx context.Context, correlationID, projectTaskID string) (string, error) {
	if strings.TrimSpace(projectTaskID) == "" {
		return "", &downstream.CallError{Service: "directory", Message: "project task id is required"}
	}

	var project struct {
		Name string `json:"name"`
	}
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-Correlation-Id", correlationID).
		SetQueryParam("task_id", projectTaskID).
		SetResult(&project).
		Get("/v1/projects")
	if err != nil {
		return "", &downstream.CallError{Service: "directory", Message: "project lookup request failed", Cause: err}
	}

	if response.StatusCode() == http.StatusNotFound {
		return "", fmt.Errorf("%w: project task %s", domain.ErrNotFound, projectTaskID)
	}
	if response.StatusCode() != http.StatusOK {
		return "", &downstream.CallError{
			Service:    "directory",
			StatusCode: response.StatusCode(),
			Message:    "project lookup rejected",
		}
	}
	return project.Name, nil
}

func isNotFoundStatus(err error) bool {
	var callErr *downstream.CallError
	return errors.As(err, &callErr) && callErr.StatusCode == http.StatusNotFound
}
