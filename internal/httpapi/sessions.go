package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/KDHBuddhika/suwatha/internal/apperr"
	"github.com/KDHBuddhika/suwatha/internal/registry"
	"github.com/KDHBuddhika/suwatha/internal/reports"
	"github.com/KDHBuddhika/suwatha/internal/session"
)

type requestSessionBody struct {
	CommunicationType string `json:"communication_type"`
}

func (s *server) handleRequestSession(w http.ResponseWriter, r *http.Request) {
	var body requestSessionBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	kind, ok := session.ParseCommunicationType(body.CommunicationType)
	if !ok {
		s.writeError(w, r, apperr.Validation("unknown communication type %q", body.CommunicationType))
		return
	}
	view, err := s.Sessions.RequestSession(r.Context(), kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type cancelSessionBody struct {
	Reason string `json:"reason"`
}

func (s *server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, err := s.actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body cancelSessionBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Sessions.Cancel(r.Context(), id, body.Reason, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, err := s.actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Sessions.End(r.Context(), id, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type feedbackBody struct {
	Rating   int    `json:"rating"`
	Comments string `json:"comments"`
}

func (s *server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body feedbackBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Sessions.SubmitFeedback(r.Context(), id, body.Rating, body.Comments)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *server) handleCreateSummary(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, err := s.actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body session.SummaryInput
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Sessions.CreateSummary(r.Context(), id, body, actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type presenceBody struct {
	Status string `json:"status"`
}

func (s *server) handleSetPresence(w http.ResponseWriter, r *http.Request) {
	actor, err := s.actor(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body presenceBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	status, ok := registry.ParseStatus(body.Status)
	if !ok {
		s.writeError(w, r, apperr.Validation("unknown status %q", body.Status))
		return
	}
	worker, err := s.Workers.SetPresence(r.Context(), actor, status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

func (s *server) handleMySessions(w http.ResponseWriter, r *http.Request) {
	worker, err := s.me(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	page, orderBy, err := pageParams(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := reports.SessionFilter{
		Search: q.Get("search"),
		Month:  q.Get("month"),
		Status: q.Get("status"),
		Type:   q.Get("type"),
	}
	out, err := s.Reports.ListWorkerSessions(r.Context(), worker.ID, filter, orderBy, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	worker, err := s.me(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	unread := strings.EqualFold(strings.TrimSpace(q.Get("unread")), "true")
	limit, err := optionalInt(q.Get("limit"), "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.Inbox.List(r.Context(), worker.ID, unread, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	worker, err := s.me(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Inbox.MarkRead(r.Context(), worker.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func optionalInt(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer, got %q", name, raw)
	}
	return v, nil
}
