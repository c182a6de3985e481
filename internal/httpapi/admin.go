package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KDHBuddhika/suwatha/internal/apperr"
	"github.com/KDHBuddhika/suwatha/internal/query"
	"github.com/KDHBuddhika/suwatha/internal/registry"
	"github.com/KDHBuddhika/suwatha/internal/reports"
)

// pageParams reads page (zero-based), size and the sort expression. The sort
// is either order_by syntax in "sort" or a sortBy/sortDir pair.
func pageParams(q url.Values) (query.Page, string, error) {
	index, err := optionalInt(q.Get("page"), "page")
	if err != nil {
		return query.Page{}, "", err
	}
	size, err := optionalInt(q.Get("size"), "size")
	if err != nil {
		return query.Page{}, "", err
	}
	orderBy := strings.TrimSpace(q.Get("sort"))
	if orderBy == "" {
		if field := strings.TrimSpace(q.Get("sortBy")); field != "" {
			orderBy = strings.TrimSpace(field + " " + strings.TrimSpace(q.Get("sortDir")))
		}
	}
	return query.NewPage(index, size), orderBy, nil
}

func (s *server) handleListSessions(w http.ResponseWriter, r *http.Request) {
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
	out, err := s.Reports.ListSessions(r.Context(), filter, orderBy, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Sessions.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, orderBy, err := pageParams(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := reports.ReportFilter{
		Search:  q.Get("search"),
		Month:   q.Get("month"),
		City:    q.Get("city"),
		Illness: q.Get("illness"),
		Risk:    q.Get("risk"),
	}
	if raw := strings.TrimSpace(q.Get("age")); raw != "" {
		age, err := optionalInt(raw, "age")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		filter.Age = &age
	}
	out, err := s.Reports.ListReports(r.Context(), filter, orderBy, page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleReportFilters(w http.ResponseWriter, r *http.Request) {
	out, err := s.Reports.Vocabulary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Reports.GetReport(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	out, err := s.Workers.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *server) handleCreateWorker(w http.ResponseWriter, r *http.Request) {
	var body registry.NewWorker
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Workers.Create(r.Context(), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *server) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Workers.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleUpdateWorker(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body registry.WorkerPatch
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Workers.Update(r.Context(), id, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleActivity serves the recent feed, or one UTC day of it when date
// (YYYY-MM-DD) is given.
func (s *server) handleActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			s.writeError(w, r, apperr.Validation("date must be YYYY-MM-DD, got %q", raw))
			return
		}
		out, err := s.Audit.ListForDate(r.Context(), day)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out})
		return
	}
	limit, err := optionalInt(q.Get("limit"), "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.Audit.ListRecent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	out, err := s.Reports.Statistics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleDashboardIllness(w http.ResponseWriter, r *http.Request) {
	out, err := s.Reports.IllnessDistribution(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *server) handleDashboardDaily(w http.ResponseWriter, r *http.Request) {
	days, err := optionalInt(r.URL.Query().Get("days"), "days")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if days < 0 {
		s.writeError(w, r, apperr.Validation("days must not be negative"))
		return
	}
	out, err := s.Reports.DailyVolume(r.Context(), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *server) handleDashboardHourly(w http.ResponseWriter, r *http.Request) {
	out, err := s.Reports.HourlyUsage(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}
