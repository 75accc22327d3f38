package directory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/studyhub/notification-queue/internal/domain"
)

func newTestClient(t *testing.T, server *httptest.Server) *RestClient {
	t.Helper()

	client, err := NewRestClientWithClient(resty.New().SetBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewRestClientWithClient() error = %v", err)
	}
	return client
}

func TestGetUserByID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") != "user-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(User{ID: "user-1", Email: "alice@example.org"})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	user, err := client.GetUserByID(context.Background(), "corr-1", "user-1")
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Email != "alice@example.org" {
		t.Fatalf("user = %+v, want alice@example.org", user)
	}
}

func TestGetUserByIDAnonFallback(t *testing.T) {
	t.Parallel()

	var queries []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		if r.URL.Query().Get("anon_project_specific_user_id") == "anon-1" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(User{ID: "user-1", Email: "anon@example.org"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	user, err := client.GetUserByID(context.Background(), "corr-1", "anon-1")
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}

	if user.Email != "anon@example.org" {
		t.Fatalf("user = %+v, want anon@example.org", user)
	}
	if len(queries) != 2 {
		t.Fatalf("lookups = %v, want user_id then anon fallback", queries)
	}
}

func TestGetUserByIDNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.GetUserByID(context.Background(), "corr-1", "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestPatchUserCRMID(t *testing.T) {
	t.Parallel()

	var gotPath, gotContentType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if err := client.PatchUserCRMID(context.Background(), "corr-1", "user-1", "74701"); err != nil {
		t.Fatalf("PatchUserCRMID() error = %v", err)
	}

	if gotPath != "/v1/users/user-1" {
		t.Fatalf("patch path = %q", gotPath)
	}
	if gotContentType != "application/json-patch+json" {
		t.Fatalf("content type = %q, want json-patch", gotContentType)
	}
	for _, want := range []string{`"op":"replace"`, `"path":"/crm_id"`, `"value":"74701"`} {
		if !strings.Contains(gotBody, want) {
			t.Fatalf("patch body = %s, want to contain %s", gotBody, want)
		}
	}
}

func TestPatchUserCRMIDRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	if err := client.PatchUserCRMID(context.Background(), "corr-1", "user-1", "74701"); err == nil {
		t.Fatal("PatchUserCRMID() expected error, got nil")
	}
}

func TestGetProjectName(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("task_id") != "task-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Sleep Study"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	name, err := client.GetProjectName(context.Background(), "corr-1", "task-1")
	if err != nil {
		t.Fatalf("GetProjectName() error = %v", err)
	}
	if name != "Sleep Study" {
		t.Fatalf("project name = %q, want Sleep Study", name)
	}

	if _, err := client.GetProjectName(context.Background(), "corr-1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetProjectName() missing error = %v, want ErrNotFound", err)
	}
}
