// Package httpapi maps HTTP requests onto the session core. Handlers parse
// input, call one operation and translate its error kind into a status.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KDHBuddhika/suwatha/internal/apperr"
	"github.com/KDHBuddhika/suwatha/internal/identity"
	"github.com/KDHBuddhika/suwatha/internal/notify/inbox"
	"github.com/KDHBuddhika/suwatha/internal/notify/live"
	"github.com/KDHBuddhika/suwatha/internal/registry"
	"github.com/KDHBuddhika/suwatha/internal/reports"
	"github.com/KDHBuddhika/suwatha/internal/session"
)

const maxRequestBodyBytes int64 = 1 << 20

// Deps are the services the routes call into.
type Deps struct {
	Sessions *session.Service
	Workers  *registry.GormStore
	Audit    *session.AuditLog
	Reports  *reports.Store
	Inbox    *inbox.Store
	Live     *live.Hub
	Identity identity.Resolver
}

type server struct {
	logger *logrus.Logger
	Deps
}

// NewServer builds the public server. With enableAdminRoutes the management
// and worker-administration routes are mounted too; those are only served on
// the admin socket.
func NewServer(logger *logrus.Logger, addr string, deps Deps, enableAdminRoutes bool) *http.Server {
	h := &server{logger: logger, Deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)

	mux.HandleFunc("POST /v1/sessions", h.handleRequestSession)
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", h.handleCancelSession)
	mux.HandleFunc("POST /v1/sessions/{id}/end", h.handleEndSession)
	mux.HandleFunc("POST /v1/sessions/{id}/feedback", h.handleSubmitFeedback)
	mux.HandleFunc("POST /v1/sessions/{id}/summary", h.handleCreateSummary)

	mux.HandleFunc("PUT /v1/workers/me/presence", h.handleSetPresence)
	mux.HandleFunc("GET /v1/workers/me/sessions", h.handleMySessions)
	mux.HandleFunc("GET /v1/workers/me/notifications", h.handleListNotifications)
	mux.HandleFunc("POST /v1/workers/me/notifications/{id}/read", h.handleMarkNotificationRead)
	mux.HandleFunc("GET /v1/workers/me/live", h.handleLive)

	if enableAdminRoutes {
		mux.HandleFunc("GET /v1/management/sessions", h.handleListSessions)
		mux.HandleFunc("GET /v1/management/sessions/{id}", h.handleGetSession)
		mux.HandleFunc("GET /v1/reports", h.handleListReports)
		mux.HandleFunc("GET /v1/reports/filters", h.handleReportFilters)
		mux.HandleFunc("GET /v1/reports/{id}", h.handleGetReport)
		mux.HandleFunc("GET /v1/workers", h.handleListWorkers)
		mux.HandleFunc("POST /v1/workers", h.handleCreateWorker)
		mux.HandleFunc("GET /v1/workers/{id}", h.handleGetWorker)
		mux.HandleFunc("PATCH /v1/workers/{id}", h.handleUpdateWorker)
		mux.HandleFunc("GET /v1/activity", h.handleActivity)
		mux.HandleFunc("GET /v1/dashboard/stats", h.handleDashboardStats)
		mux.HandleFunc("GET /v1/dashboard/illness", h.handleDashboardIllness)
		mux.HandleFunc("GET /v1/dashboard/daily", h.handleDashboardDaily)
		mux.HandleFunc("GET /v1/dashboard/hourly", h.handleDashboardHourly)
	}

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type errorBody struct {
	Kind  apperr.Kind `json:"kind"`
	Error string      `json:"error"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindNoWorkerAvailable: http.StatusServiceUnavailable,
	apperr.KindInvalidState:      http.StatusConflict,
	apperr.KindForbidden:         http.StatusForbidden,
	apperr.KindAlreadyExists:     http.StatusConflict,
	apperr.KindValidation:        http.StatusBadRequest,
	apperr.KindUnauthenticated:   http.StatusUnauthorized,
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Kind: apperr.KindInternal, Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Kind: kind, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid json: %v", err)
	}
	if dec.More() {
		return apperr.Validation("invalid json: trailing content")
	}
	return nil
}

func pathID(r *http.Request, name string) (uint, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid %s %q", name, raw)
	}
	return uint(id), nil
}

// actor resolves the caller's identity string.
func (s *server) actor(r *http.Request) (string, error) {
	if s.Identity == nil {
		return "", fmt.Errorf("%w: no identity resolver configured", apperr.ErrUnauthenticated)
	}
	return s.Identity.Resolve(r)
}

// me resolves the caller to a registered worker.
func (s *server) me(r *http.Request) (registry.Worker, error) {
	actor, err := s.actor(r)
	if err != nil {
		return registry.Worker{}, err
	}
	worker, err := s.Workers.GetByEmail(r.Context(), actor)
	if errors.Is(err, apperr.ErrNotFound) {
		return registry.Worker{}, apperr.Forbidden("%s is not a registered worker", actor)
	}
	return worker, err
}

func (s *server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.Live == nil {
		http.Error(w, "live notifications not configured", http.StatusNotImplemented)
		return
	}
	// Browsers cannot set headers on a websocket handshake.
	if r.Header.Get("Authorization") == "" {
		if token := strings.TrimSpace(r.URL.Query().Get("access_token")); token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
	worker, err := s.me(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Live.ServeWorker(w, r, worker.ID)
}
