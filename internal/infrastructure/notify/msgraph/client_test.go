package msgraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int) {
	t.Helper()
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		tokenCalls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/", handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := New("tenant", "client", "secret", "autopilot@example.com", Options{
		BaseURL:  server.URL,
		TokenURL: server.URL + "/token",
	})
	return client, &tokenCalls
}

func TestSendMailUsesBearerTokenAndExpects202(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	client, tokenCalls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	})

	if err := client.Send(context.Background(), "ops@example.com", "Document filed", "body"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotPath != "/users/autopilot@example.com/sendMail" {
		t.Fatalf("path = %q", gotPath)
	}
	message, _ := gotBody["message"].(map[string]any)
	if message["subject"] != "Document filed" {
		t.Fatalf("message = %+v", message)
	}

	// Second send reuses the cached token.
	if err := client.Send(context.Background(), "ops@example.com", "again", "body"); err != nil {
		t.Fatalf("second Send() error = %v", err)
	}
	if *tokenCalls != 1 {
		t.Fatalf("token fetched %d times, want 1", *tokenCalls)
	}
}

func TestSendMailRejectionIsDispatchError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "mailbox quota exceeded", http.StatusForbidden)
	})

	err := client.Send(context.Background(), "ops@example.com", "subject", "body")
	if !domain.IsKind(err, domain.ErrWorkflowDispatch) {
		t.Fatalf("err = %v, want workflow dispatch kind", err)
	}
}

func TestScheduleCreatesCalendarEvent(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	})

	when := time.Date(2026, 9, 30, 10, 0, 0, 0, time.UTC)
	if err := client.Schedule(context.Background(), "reviewer@example.com", when, "Review Finance/q1.pdf"); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if gotPath != "/users/reviewer@example.com/events" {
		t.Fatalf("path = %q", gotPath)
	}
	start, _ := gotBody["start"].(map[string]any)
	if start["dateTime"] != "2026-09-30T10:00:00" {
		t.Fatalf("start = %+v", start)
	}
}
