package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/studyhub/notification-queue/internal/downstream"
)

func newTestSendClient(t *testing.T, server *httptest.Server) *RestSendClient {
	t.Helper()

	client, err := NewRestSendClientWithClient(resty.New().SetBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewRestSendClientWithClient() error = %v", err)
	}
	return client
}

func TestSend(t *testing.T) {
	t.Parallel()

	var gotRequest SendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/email/v1/singleEmail/send" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotRequest)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestSendClient(t, server)
	statusCode, err := client.Send(context.Background(), "corr-1", SendRequest{
		TemplateID: "tmpl-1",
		Message: Message{
			From:   "noreply@example.org",
			To:     "alice@example.org",
			SendID: "notif-1",
		},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if statusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", statusCode)
	}
	if gotRequest.Message.SendID != "notif-1" {
		t.Fatalf("sendId = %q, want notif-1", gotRequest.Message.SendID)
	}
}

func TestSendNon200IsFailure(t *testing.T) {
	t.Parallel()

	// Only an exact 200 counts as delivered; even 202 is a failure.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendClient(t, server)
	statusCode, err := client.Send(context.Background(), "corr-1", SendRequest{
		TemplateID: "tmpl-1",
		Message:    Message{To: "alice@example.org", SendID: "notif-1"},
	})
	if err == nil {
		t.Fatal("Send() expected error for 202, got nil")
	}

	var callErr *downstream.CallError
	if !errors.As(err, &callErr) || callErr.StatusCode != http.StatusAccepted {
		t.Fatalf("Send() error = %v, want CallError with 202", err)
	}
	if statusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", statusCode)
	}
}

func TestSendValidation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	}))
	defer server.Close()

	client := newTestSendClient(t, server)

	if _, err := client.Send(context.Background(), "corr-1", SendRequest{
		Message: Message{To: "alice@example.org"},
	}); err == nil {
		t.Fatal("Send() without template id expected error, got nil")
	}

	if _, err := client.Send(context.Background(), "corr-1", SendRequest{
		TemplateID: "tmpl-1",
	}); err == nil {
		t.Fatal("Send() without recipient expected error, got nil")
	}
}
