// Package reports serves the read-only listings behind the management
// dashboard: the operational session list and the analytic report list.
package reports

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/KDHBuddhika/suwatha/internal/apperr"
	"github.com/KDHBuddhika/suwatha/internal/query"
	"github.com/KDHBuddhika/suwatha/internal/registry"
	"github.com/KDHBuddhika/suwatha/internal/session"
)

var sessionSortColumns = map[string]string{
	"id":                 "s.id",
	"session_id":         "s.id",
	"type":               "s.communication_type",
	"communication_type": "s.communication_type",
	"date":               "s.start_time",
	"start":              "s.start_time",
	"start_time":         "s.start_time",
	"end_time":           "s.end_time",
	"status":             "s.status",
	"requester_handle":   "r.anonymous_handle",
	"patient_handle":     "r.anonymous_handle",
	"worker_name":        "w.name",
	"therapist_name":     "w.name",
	"rating":             "f.rating",
}

var reportSortColumns = map[string]string{
	"id":                  "s.id",
	"session_id":          "s.id",
	"date":                "s.start_time",
	"worker_name":         "w.name",
	"therapist_name":      "w.name",
	"requester_handle":    "r.anonymous_handle",
	"patient_handle":      "r.anonymous_handle",
	"city":                "sm.city",
	"illness":             "sm.identified_illness",
	"identified_illness":  "sm.identified_illness",
	"age":                 "sm.age",
	"gender":              "sm.gender",
	"risk":                "sm.risk_assessment",
	"risk_assessment":     "sm.risk_assessment",
	"duration":            "sm.duration_in_minutes",
	"duration_in_minutes": "sm.duration_in_minutes",
}

var (
	defaultSessionOrder = query.Order{{Column: "s.start_time", Desc: true}}
	defaultReportOrder  = query.Order{{Column: "s.start_time", Desc: true}}
)

type Store struct {
	db      *gorm.DB
	workers *registry.GormStore
	now     func() time.Time
}

func NewStore(db *gorm.DB, workers *registry.GormStore) *Store {
	return &Store{db: db, workers: workers, now: func() time.Time { return time.Now().UTC() }}
}

type SessionFilter struct {
	Search string
	Month  string
	Status string
	Type   string
}

type SessionItem struct {
	SessionID         uint       `json:"session_id"`
	CommunicationType string     `json:"communication_type"`
	StartTime         *time.Time `json:"start_time,omitempty"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	Status            string     `json:"status"`
	RequesterHandle   string     `json:"requester_handle"`
	WorkerName        string     `json:"worker_name"`
	Rating            *int       `json:"rating,omitempty"`
	DurationMinutes   *int64     `json:"duration_minutes,omitempty"`
}

type SessionPage struct {
	Items      []SessionItem    `json:"items"`
	Pagination query.Pagination `json:"pagination"`
}

func sessionSpecs(f SessionFilter) query.Specs {
	status, statusOK := session.ParseStatus(f.Status)
	kind, kindOK := session.ParseCommunicationType(f.Type)
	return query.Specs{}.
		Search(f.Search, "w.name", "r.anonymous_handle").
		Month("s.start_time", f.Month).
		Equal("s.status", string(status), statusOK).
		Equal("s.communication_type", string(kind), kindOK)
}

func sessionPredicate(f SessionFilter) query.Predicate {
	return sessionSpecs(f).Predicate()
}

func sessionsFrom(db *gorm.DB) *gorm.DB {
	return db.Table("sessions AS s").
		Joins("JOIN workers w ON w.id = s.worker_id").
		Joins("JOIN requesters r ON r.id = s.requester_id").
		Joins("LEFT JOIN session_feedback f ON f.session_id = s.id")
}

// ListSessions pages through every session with its worker, requester and rating.
func (s *Store) ListSessions(ctx context.Context, f SessionFilter, orderBy string, page query.Page) (SessionPage, error) {
	return s.listSessions(ctx, sessionPredicate(f), orderBy, page)
}

// ListWorkerSessions is ListSessions restricted to the sessions assigned to
// one worker.
func (s *Store) ListWorkerSessions(ctx context.Context, workerID uint, f SessionFilter, orderBy string, page query.Page) (SessionPage, error) {
	pred := sessionSpecs(f).Equal("s.worker_id", workerID, true).Predicate()
	return s.listSessions(ctx, pred, orderBy, page)
}

func (s *Store) listSessions(ctx context.Context, pred query.Predicate, orderBy string, page query.Page) (SessionPage, error) {
	order := query.ParseSort(orderBy, sessionSortColumns, defaultSessionOrder)

	var out SessionPage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var total int64
		if err := sessionsFrom(tx).Scopes(pred).Count(&total).Error; err != nil {
			return fmt.Errorf("count sessions: %w", err)
		}
		var items []SessionItem
		err := sessionsFrom(tx).
			Select("s.id AS session_id, s.communication_type, s.start_time, s.end_time, s.status, " +
				"r.anonymous_handle AS requester_handle, w.name AS worker_name, f.rating AS rating").
			Scopes(pred, order.Scope("s.id"), page.Scope()).
			Scan(&items).Error
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		for i := range items {
			items[i].DurationMinutes = floorMinutes(items[i].StartTime, items[i].EndTime)
		}
		if items == nil {
			items = []SessionItem{}
		}
		out = SessionPage{Items: items, Pagination: page.Describe(total)}
		return nil
	})
	if err != nil {
		return SessionPage{}, err
	}
	return out, nil
}

func floorMinutes(start, end *time.Time) *int64 {
	if start == nil || end == nil {
		return nil
	}
	m := int64(end.Sub(*start) / time.Minute)
	if m < 0 {
		m = 0
	}
	return &m
}

type ReportFilter struct {
	Search  string
	Month   string
	City    string
	Illness string
	Risk    string
	Age     *int
}

type ReportItem struct {
	SessionID         uint       `json:"session_id"`
	Date              *time.Time `json:"date,omitempty"`
	WorkerName        string     `json:"worker_name"`
	RequesterHandle   string     `json:"requester_handle"`
	IdentifiedIllness string     `json:"identified_illness"`
	City              string     `json:"city"`
	Age               *int       `json:"age,omitempty"`
	Gender            *string    `json:"gender,omitempty"`
	RiskAssessment    string     `json:"risk_assessment"`
	DurationInMinutes int64      `json:"duration_in_minutes"`
}

type ReportSummary struct {
	TotalReports     int64   `json:"total_reports"`
	UniqueRequesters int64   `json:"unique_requesters"`
	ActiveWorkers    int64   `json:"active_workers"`
	AverageDuration  float64 `json:"average_duration"`
}

type reportAggregate struct {
	TotalReports     int64
	UniqueRequesters int64
	AverageDuration  *float64
}

type ReportPage struct {
	Items      []ReportItem     `json:"items"`
	Pagination query.Pagination `json:"pagination"`
	Summary    ReportSummary    `json:"summary"`
}

func reportPredicate(f ReportFilter) query.Predicate {
	risk, riskOK := session.ParseRisk(f.Risk)
	var age int
	if f.Age != nil {
		age = *f.Age
	}
	return query.Specs{}.
		Search(f.Search, "w.name", "r.anonymous_handle").
		Month("s.start_time", f.Month).
		EqualFold("sm.city", f.City).
		EqualFold("sm.identified_illness", f.Illness).
		Equal("sm.risk_assessment", string(risk), riskOK).
		Equal("sm.age", age, f.Age != nil).
		Predicate()
}

func reportsFrom(db *gorm.DB) *gorm.DB {
	return db.Table("session_summaries AS sm").
		Joins("JOIN sessions s ON s.id = sm.session_id").
		Joins("JOIN workers w ON w.id = s.worker_id").
		Joins("JOIN requesters r ON r.id = s.requester_id")
}

const reportColumns = "sm.session_id, s.start_time AS date, w.name AS worker_name, " +
	"r.anonymous_handle AS requester_handle, sm.identified_illness, sm.city, sm.age, sm.gender, " +
	"sm.risk_assessment, sm.duration_in_minutes"

// ListReports pages through session summaries and aggregates the whole
// filtered set. Rows, totals and summary come from one read transaction.
func (s *Store) ListReports(ctx context.Context, f ReportFilter, orderBy string, page query.Page) (ReportPage, error) {
	pred := reportPredicate(f)
	order := query.ParseSort(orderBy, reportSortColumns, defaultReportOrder)

	var out ReportPage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var agg reportAggregate
		err := reportsFrom(tx).
			Select("COUNT(*) AS total_reports, COUNT(DISTINCT s.requester_id) AS unique_requesters, " +
				"AVG(sm.duration_in_minutes) AS average_duration").
			Scopes(pred).
			Scan(&agg).Error
		if err != nil {
			return fmt.Errorf("aggregate reports: %w", err)
		}
		active, err := s.workers.WithTx(tx).CountActive(ctx)
		if err != nil {
			return err
		}

		var items []ReportItem
		if err := reportsFrom(tx).Select(reportColumns).Scopes(pred, order.Scope("s.id"), page.Scope()).Scan(&items).Error; err != nil {
			return fmt.Errorf("list reports: %w", err)
		}
		if items == nil {
			items = []ReportItem{}
		}

		summary := ReportSummary{
			TotalReports:     agg.TotalReports,
			UniqueRequesters: agg.UniqueRequesters,
			ActiveWorkers:    active,
		}
		if agg.AverageDuration != nil {
			summary.AverageDuration = *agg.AverageDuration
		}
		out = ReportPage{Items: items, Pagination: page.Describe(agg.TotalReports), Summary: summary}
		return nil
	})
	if err != nil {
		return ReportPage{}, err
	}
	return out, nil
}

type ReportDetail struct {
	ReportItem
	CommunicationType string `json:"communication_type"`
	PrivateNotes      string `json:"private_notes,omitempty"`
	Rating            *int   `json:"rating,omitempty"`
	FeedbackComments  string `json:"feedback_comments,omitempty"`
}

type reportDetailRow struct {
	ReportItem
	CommunicationType string
	PrivateNotes      string
	Rating            *int
	FeedbackComments  *string
}

func (s *Store) GetReport(ctx context.Context, sessionID uint) (ReportDetail, error) {
	var row reportDetailRow
	err := reportsFrom(s.db.WithContext(ctx)).
		Joins("LEFT JOIN session_feedback f ON f.session_id = s.id").
		Select(reportColumns+", s.communication_type, sm.private_notes, f.rating AS rating, f.comments AS feedback_comments").
		Where("sm.session_id = ?", sessionID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ReportDetail{}, apperr.NotFound("report for session %d", sessionID)
		}
		return ReportDetail{}, fmt.Errorf("get report: %w", err)
	}
	out := ReportDetail{
		ReportItem:        row.ReportItem,
		CommunicationType: row.CommunicationType,
		PrivateNotes:      row.PrivateNotes,
		Rating:            row.Rating,
	}
	if row.FeedbackComments != nil {
		out.FeedbackComments = *row.FeedbackComments
	}
	return out, nil
}

type Vocabulary struct {
	Cities    []string `json:"cities"`
	Illnesses []string `json:"illnesses"`
	Risks     []string `json:"risks"`
}

// Vocabulary lists the distinct values report filters can take.
func (s *Store) Vocabulary(ctx context.Context) (Vocabulary, error) {
	cities, err := s.distinct(ctx, "city")
	if err != nil {
		return Vocabulary{}, err
	}
	illnesses, err := s.distinct(ctx, "identified_illness")
	if err != nil {
		return Vocabulary{}, err
	}
	risks := make([]string, 0, len(session.Risks))
	for _, r := range session.Risks {
		risks = append(risks, string(r))
	}
	return Vocabulary{Cities: cities, Illnesses: illnesses, Risks: risks}, nil
}

func (s *Store) distinct(ctx context.Context, column string) ([]string, error) {
	var values []string
	err := s.db.WithContext(ctx).
		Table("session_summaries").
		Where(fmt.Sprintf("%s IS NOT NULL AND TRIM(%s) <> ''", column, column)).
		Distinct(column).
		Pluck(column, &values).Error
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", column, err)
	}
	sort.Strings(values)
	if values == nil {
		values = []string{}
	}
	return values, nil
}
