package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/studyhub/notification-queue/internal/directory"
	"github.com/studyhub/notification-queue/internal/domain"
)

type fakeTemplateStore struct {
	templates map[string]*domain.EmailTemplate
}

func (f *fakeTemplateStore) GetByName(_ context.Context, name string) (*domain.EmailTemplate, error) {
	template, ok := f.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: email template %q", domain.ErrNotFound, name)
	}
	return template, nil
}

type fakeDirectoryClient struct {
	mu          sync.Mutex
	users       map[string]*directory.User
	projects    map[string]string
	userLookups int
}

func (f *fakeDirectoryClient) GetUserByID(_ context.Context, _ string, userID string) (*directory.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userLookups++
	user, ok := f.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	return user, nil
}

func (f *fakeDirectoryClient) PatchUserCRMID(context.Context, string, string, string) error {
	return nil
}

func (f *fakeDirectoryClient) GetProjectName(_ context.Context, _ string, taskID string) (string, error) {
	name, ok := f.projects[taskID]
	if !ok {
		return "", fmt.Errorf("%w: project task %s", domain.ErrNotFound, taskID)
	}
	return name, nil
}

type fakeSendClient struct {
	status   int
	err      error
	requests []SendRequest
}

func (f *fakeSendClient) Send(_ context.Context, _ string, req SendRequest) (int, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return f.status, f.err
	}
	return f.status, nil
}

func welcomeTemplate() *domain.EmailTemplate {
	return &domain.EmailTemplate{
		Name:       "welcome",
		TemplateID: "tmpl-1",
		From:       "noreply@example.org",
		ContactProperties: []domain.PropertySpec{
			{Name: "user_first_name", Required: true},
		},
		CustomProperties: []domain.PropertySpec{
			{Name: "project_name", Required: true},
		},
	}
}

func newTestService(t *testing.T, store *fakeTemplateStore, dir *fakeDirectoryClient, sender *fakeSendClient) *Service {
	t.Helper()

	s, err := NewService(store, dir, sender, nil, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return s
}

func mustParseDetails(t *testing.T, raw string) (*Details, domain.Recipient) {
	t.Helper()

	details, recipient, err := ParseDetails([]byte(raw))
	if err != nil {
		t.Fatalf("ParseDetails() error = %v", err)
	}
	return details, recipient
}

func propertyValue(properties []NameValue, name string) (string, bool) {
	for _, property := range properties {
		if property.Name == name {
			return property.Value, true
		}
	}
	return "", false
}

func TestParseDetails(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{
			name: "recipient by email",
			raw:  `{"template_name":"welcome","to_recipient_email":"alice@example.org"}`,
		},
		{
			name: "recipient by id",
			raw:  `{"template_name":"welcome","to_recipient_id":"user-1"}`,
		},
		{
			name:    "no recipient",
			raw:     `{"template_name":"welcome"}`,
			wantErr: domain.ErrValidation,
		},
		{
			name:    "missing template name",
			raw:     `{"to_recipient_email":"alice@example.org"}`,
			wantErr: domain.ErrValidation,
		},
		{
			name:    "malformed payload",
			raw:     `{"template_name":`,
			wantErr: domain.ErrValidation,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := ParseDetails([]byte(tc.raw))
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("ParseDetails() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ParseDetails() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSendWithSuppliedProperties(t *testing.T) {
	t.Parallel()

	store := &fakeTemplateStore{templates: map[string]*domain.EmailTemplate{"welcome": welcomeTemplate()}}
	dir := &fakeDirectoryClient{}
	sender := &fakeSendClient{status: http.StatusOK}
	s := newTestService(t, store, dir, sender)

	details, recipient := mustParseDetails(t,
		`{"template_name":"welcome","to_recipient_email":"alice@example.org",
		  "contact_properties":{"user_first_name":"Alice"},
		  "custom_properties":{"project_name":"Sleep Study"}}`)

	statusCode, err := s.Send(context.Background(), "corr-1", "notif-1", details, recipient)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if statusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", statusCode)
	}

	if len(sender.requests) != 1 {
		t.Fatalf("sends = %d, want 1", len(sender.requests))
	}
	request := sender.requests[0]
	if request.Message.To != "alice@example.org" {
		t.Fatalf("to = %q, want alice@example.org", request.Message.To)
	}
	if request.Message.SendID != "notif-1" {
		t.Fatalf("sendId = %q, want notif-1", request.Message.SendID)
	}
	if value, _ := propertyValue(request.ContactProperties, "user_first_name"); value != "Alice" {
		t.Fatalf("user_first_name = %q, want Alice", value)
	}
	if dir.userLookups != 0 {
		t.Fatalf("directory lookups = %d, want 0 when payload supplies everything", dir.userLookups)
	}
}

func TestSendFillsPropertiesFromDirectory(t *testing.T) {
	t.Parallel()

	crmID := "74701"
	template := welcomeTemplate()
	template.ContactProperties = []domain.PropertySpec{
		{Name: "user_first_name", Required: true},
		{Name: "user_last_name", Required: true},
		{Name: "user_email", Required: true},
	}
	template.CustomProperties = nil

	store := &fakeTemplateStore{templates: map[string]*domain.EmailTemplate{"welcome": template}}
	dir := &fakeDirectoryClient{users: map[string]*directory.User{
		"user-1": {ID: "user-1", Email: "alice@example.org", FirstName: "Alice", LastName: "Ash", CRMID: &crmID},
	}}
	sender := &fakeSendClient{status: http.StatusOK}
	s := newTestService(t, store, dir, sender)

	details, recipient := mustParseDetails(t, `{"template_name":"welcome","to_recipient_id":"user-1"}`)

	if _, err := s.Send(context.Background(), "corr-1", "notif-1", details, recipient); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	request := sender.requests[0]
	if request.Message.To != "alice@example.org" {
		t.Fatalf("to = %q, want directory email", request.Message.To)
	}
	for property, want := range map[string]string{
		"user_first_name": "Alice",
		"user_last_name":  "Ash",
		"user_email":      "alice@example.org",
	} {
		if value, _ := propertyValue(request.ContactProperties, property); value != want {
			t.Fatalf("%s = %q, want %q", property, value, want)
		}
	}
	// Three lookups plus address resolution share one cached user fetch, and
	// resolveAddress runs its own.
	if dir.userLookups > 2 {
		t.Fatalf("directory lookups = %d, want the user cached across properties", dir.userLookups)
	}
}

func TestSendResolvesProjectName(t *testing.T) {
	t.Parallel()

	template := welcomeTemplate()
	template.ContactProperties = nil

	store := &fakeTemplateStore{templates: map[string]*domain.EmailTemplate{"welcome": template}}
	dir := &fakeDirectoryClient{projects: map[string]string{"task-1": "Sleep Study"}}
	sender := &fakeSendClient{status: http.StatusOK}
	s := newTestService(t, store, dir, sender)

	details, recipient := mustParseDetails(t,
		`{"template_name":"welcome","to_recipient_email":"alice@example.org",
		  "custom_properties":{"project_task_id":"task-1"}}`)

	if _, err := s.Send(context.Background(), "corr-1", "notif-1", details, recipient); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	request := sender.requests[0]
	if value, _ := propertyValue(request.CustomProperties, "project_name"); value != "Sleep Study" {
		t.Fatalf("project_name = %q, want Sleep Study", value)
	}
}

func TestSendRequiredPropertyMissing(t *testing.T) {
	t.Parallel()

	store := &fakeTemplateStore{templates: map[string]*domain.EmailTemplate{"welcome": welcomeTemplate()}}
	sender := &fakeSendClient{status: http.StatusOK}
	s := newTestService(t, store, &fakeDirectoryClient{}, sender)

	// user_first_name can only come from a directory lookup, which needs a
	// recipient id; an email recipient leaves it unresolvable.
	details, recipient := mustParseDetails(t,
		`{"template_name":"welcome","to_recipient_email":"alice@example.org",
		  "custom_properties":{"project_name":"Sleep Study"}}`)

	_, err := s.Send(context.Background(), "corr-1", "notif-1", details, recipient)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Send() error = %v, want ErrValidation", err)
	}
	if len(sender.requests) != 0 {
		t.Fatal("no send expected when a required property is missing")
	}
}

func TestSendRequiredPropertyEmpty(t *testing.T) {
	t.Parallel()

	store := &fakeTemplateStore{templates: map[string]*domain.EmailTemplate{"welcome": welcomeTemplate()}}
	sender := &fakeSendClient{status: http.StatusOK}
	s := newTestService(t, store, &fakeDirectoryClient{}, sender)

	details, recipient := mustParseDetails(t,
		`{"template_name":"welcome","to_recipient_email":"alice@example.org",
		  "contact_properties":{"user_first_name":""},
		  "custom_properties":{"project_name":"Sleep Study"}}`)

	if _, err := s.Send(context.Background(), "corr-1", "notif-1", details, recipient); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Send() error = %v, want ErrValidation", err)
	}
}

func TestSendUnknownSuppliedProperty(t *testing.T) {
	t.Parallel()

	store := &fakeTemplateStore{templates: map[string]*domain.EmailTemplate{"welcome": welcomeTemplate()}}
	sender := &fakeSendClient{status: http.StatusOK}
	s := newTestService(t, store, &fakeDirectoryClient{}, sender)

	details, recipient := mustParseDetails(t,
		`{"template_name":"welcome","to_recipient_email":"alice@example.org",
		  "contact_properties":{"user_first_name":"Alice","shoe_size":"42"},
		  "custom_properties":{"project_name":"Sleep Study"}}`)

	if _, err := s.Send(context.Background(), "corr-1", "notif-1", details, recipient); !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("Send() error = %v, want ErrIntegrity", err)
	}
}

func TestSendRecipientWithoutCRMID(t *testing.T) {
	t.Parallel()

	template := welcomeTemplate()
	template.ContactProperties = nil
	template.CustomProperties = nil

	store := &fakeTemplateStore{templates: map[string]*domain.EmailTemplate{"welcome": template}}
	dir := &fakeDirectoryClient{users: map[string]*directory.User{
		"user-1": {ID: "user-1", Email: "alice@example.org"},
	}}
	sender := &fakeSendClient{status: http.StatusOK}
	s := newTestService(t, store, dir, sender)

	details, recipient := mustParseDetails(t, `{"template_name":"welcome","to_recipient_id":"user-1"}`)

	if _, err := s.Send(context.Background(), "corr-1", "notif-1", details, recipient); !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("Send() error = %v, want ErrIntegrity", err)
	}
}

func TestSendRejectedStatus(t *testing.T) {
	t.Parallel()

	template := welcomeTemplate()
	template.ContactProperties = nil
	template.CustomProperties = nil

	store := &fakeTemplateStore{templates: map[string]*domain.EmailTemplate{"welcome": template}}
	sender := &fakeSendClient{status: http.StatusAccepted}
	s := newTestService(t, store, &fakeDirectoryClient{}, sender)

	details, recipient := mustParseDetails(t, `{"template_name":"welcome","to_recipient_email":"alice@example.org"}`)

	statusCode, err := s.Send(context.Background(), "corr-1", "notif-1", details, recipient)
	if err == nil {
		t.Fatal("Send() expected error for non-200 status, got nil")
	}
	if statusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", statusCode)
	}
}

func TestSendUnknownTemplate(t *testing.T) {
	t.Parallel()

	store := &fakeTemplateStore{templates: map[string]*domain.EmailTemplate{}}
	s := newTestService(t, store, &fakeDirectoryClient{}, &fakeSendClient{status: http.StatusOK})

	details, recipient := mustParseDetails(t, `{"template_name":"ghost","to_recipient_email":"alice@example.org"}`)

	if _, err := s.Send(context.Background(), "corr-1", "notif-1", details, recipient); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Send() error = %v, want ErrNotFound", err)
	}
}
