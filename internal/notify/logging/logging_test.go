package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/KDHBuddhika/suwatha/internal/notify"
)

func TestSubscriberHandle(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	s := New(logger)

	event := notify.NewWorkerNotification(3, "a@example.com", 9, "New CHAT session request", "https://example.com/session/chat/9")
	if err := s.Handle(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name() != "logging" {
		t.Fatalf("unexpected name: %s", s.Name())
	}
	out := buf.String()
	if !strings.Contains(out, event.ID) || !strings.Contains(out, "session_id=9") {
		t.Fatalf("expected log output to carry event fields, got %q", out)
	}
}
