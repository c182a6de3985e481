package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KDHBuddhika/suwatha/internal/notify"
)

func testEvent() notify.Event {
	return notify.Event{
		ID:         "evt_1",
		Kind:       notify.KindSessionRequested,
		OccurredAt: time.Unix(1_700_000_000, 0).UTC(),
		WorkerID:   3,
		SessionID:  11,
		Message:    "New CHAT session request from Patient-1a2b3c4d. Please join now.",
		LinkURL:    "https://suwatha.example/session/chat/11",
	}
}

func TestHandleSuccessfulPost(t *testing.T) {
	var (
		gotMethod string
		gotSecret string
		gotEvent  notify.Event
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		gotMethod = r.Method
		gotSecret = r.Header.Get("X-Suwatha-Webhook-Secret")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request body: %v", err)
		}
		if err := json.Unmarshal(body, &gotEvent); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	subscriber := New("webhook-test", server.URL+"/hooks", WithSharedSecret("s3cret"))
	if err := subscriber.Handle(context.Background(), testEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPost || gotSecret != "s3cret" {
		t.Fatalf("unexpected request: method=%s secret=%q", gotMethod, gotSecret)
	}
	if gotEvent.SessionID != 11 || gotEvent.LinkURL == "" {
		t.Fatalf("unexpected payload: %+v", gotEvent)
	}
}

func TestHandleNon2xxReturnsErrorWithBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream failed"))
	}))
	defer server.Close()

	err := New("", server.URL).Handle(context.Background(), testEvent())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "upstream failed") {
		t.Fatalf("expected status and body in error, got %v", err)
	}
}

func TestHandleKindFilterSkipsMail(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	subscriber := New("webhook-test", server.URL, WithKindFilter(func(k notify.Kind) bool {
		return k == notify.KindSessionRequested
	}))
	if err := subscriber.Handle(context.Background(), notify.NewMail("a@example.com", "s", "b")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := subscriber.Handle(context.Background(), testEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one webhook call, got %d", calls)
	}
}

func TestHandlePostTimeoutReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(250 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := &http.Client{Timeout: 50 * time.Millisecond}
	err := New("webhook-test", server.URL, WithHTTPClient(client)).Handle(context.Background(), testEvent())
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !strings.Contains(err.Error(), "Timeout") && !strings.Contains(err.Error(), "deadline exceeded") {
		t.Fatalf("expected timeout/deadline error, got %v", err)
	}
}

func TestDefaultName(t *testing.T) {
	if got := New(" ", "http://localhost").Name(); got != "webhook" {
		t.Fatalf("unexpected name %q", got)
	}
}
