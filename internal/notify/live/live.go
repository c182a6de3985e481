// Package live pushes session requests to workers who hold an open
// websocket on their dashboard.
package live

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/KDHBuddhika/suwatha/internal/notify"
)

const (
	maxClientMessageBytes = 512
	sendBuffer            = 16
	writeWait             = 10 * time.Second
	pongWait              = 60 * time.Second
	pingPeriod            = (pongWait * 9) / 10
)

type client struct {
	workerID uint
	send     chan notify.Event
}

// Hub tracks open worker connections. It is a notify.Subscriber.
type Hub struct {
	logger *logrus.Logger

	mu      sync.Mutex
	clients map[uint]map[*client]struct{}
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{logger: logger, clients: map[uint]map[*client]struct{}{}}
}

func (h *Hub) Name() string {
	return "live"
}

// Handle queues the event for every connection of the addressed worker.
// Slow connections drop events rather than block delivery.
func (h *Hub) Handle(_ context.Context, event notify.Event) error {
	if event.Kind != notify.KindSessionRequested || event.WorkerID == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[event.WorkerID] {
		select {
		case c.send <- event:
		default:
			h.logger.WithFields(logrus.Fields{"worker_id": event.WorkerID, "event_id": event.ID}).
				Warn("live connection is behind, dropping event")
		}
	}
	return nil
}

// Connected reports how many connections a worker holds.
func (h *Hub) Connected(workerID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[workerID])
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.workerID]
	if set == nil {
		set = map[*client]struct{}{}
		h.clients[c.workerID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.workerID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.workerID)
	}
}

// ServeWorker upgrades the request and streams the worker's events until
// the peer goes away.
func (h *Hub) ServeWorker(w http.ResponseWriter, r *http.Request, workerID uint) {
	upgrader := websocket.Upgrader{CheckOrigin: isWebSocketOriginAllowed}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("live ws upgrade failed")
		return
	}
	defer conn.Close()

	c := &client{workerID: workerID, send: make(chan notify.Event, sendBuffer)}
	h.register(c)
	defer h.unregister(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxClientMessageBytes)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case event := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func isWebSocketOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsedOrigin, err := url.Parse(origin)
	if err != nil || strings.TrimSpace(parsedOrigin.Host) == "" {
		return false
	}
	return strings.EqualFold(parsedOrigin.Host, r.Host)
}
