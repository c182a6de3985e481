package live

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/KDHBuddhika/suwatha/internal/notify"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func waitConnected(t *testing.T, hub *Hub, workerID uint, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Connected(workerID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d connections for worker %d, got %d", want, workerID, hub.Connected(workerID))
}

func newTestServer(t *testing.T, hub *Hub, workerID uint) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWorker(w, r, workerID)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestHubPushesToAddressedWorker(t *testing.T) {
	hub := NewHub(quietLogger())
	wsURL := newTestServer(t, hub, 5)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitConnected(t, hub, 5, 1)

	if err := hub.Handle(context.Background(), notify.NewWorkerNotification(6, "", 1, "not for you", "")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	want := notify.NewWorkerNotification(5, "", 2, "for you", "https://x/session/chat/2")
	if err := hub.Handle(context.Background(), want); err != nil {
		t.Fatalf("handle: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got notify.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ID != want.ID || got.SessionID != 2 {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub := NewHub(quietLogger())
	wsURL := newTestServer(t, hub, 9)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitConnected(t, hub, 9, 1)
	_ = conn.Close()
	waitConnected(t, hub, 9, 0)
}

func TestHubRejectsCrossOrigin(t *testing.T) {
	hub := NewHub(quietLogger())
	wsURL := newTestServer(t, hub, 1)

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatalf("expected cross-origin dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
}

func TestHandleWithoutConnectionsIsNoop(t *testing.T) {
	hub := NewHub(quietLogger())
	if err := hub.Handle(context.Background(), notify.NewWorkerNotification(1, "", 1, "m", "")); err != nil {
		t.Fatalf("handle: %v", err)
	}
}
