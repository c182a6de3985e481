// Package session matches requesters to workers and drives each session
// through its lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KDHBuddhika/suwatha/internal/apperr"
	dbpkg "github.com/KDHBuddhika/suwatha/internal/db"
	"github.com/KDHBuddhika/suwatha/internal/ids"
	"github.com/KDHBuddhika/suwatha/internal/notify"
	"github.com/KDHBuddhika/suwatha/internal/registry"
)

const (
	maxHandleAttempts = 3
	mailSubject       = "New Patient Session Request!"
	maxRating         = 5
	minRating         = 1
)

type Service struct {
	db       *gorm.DB
	workers  *registry.GormStore
	audit    *AuditLog
	notifier notify.Sender
	logger   *logrus.Logger
	baseURL  string
	now      func() time.Time
}

func NewService(db *gorm.DB, workers *registry.GormStore, audit *AuditLog, notifier notify.Sender, logger *logrus.Logger, publicBaseURL string) *Service {
	return &Service{
		db:       db,
		workers:  workers,
		audit:    audit,
		notifier: notifier,
		logger:   logger,
		baseURL:  strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates the session tables. The worker table must already exist.
func (s *Service) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&requesterRow{}, &sessionRow{}, &feedbackRow{}, &summaryRow{}, &activityRow{}); err != nil {
		return fmt.Errorf("migrate sessions: %w", err)
	}
	return nil
}

// RequestSession registers an anonymous requester, claims a worker and opens
// an ACTIVE session between them. The requester row survives a failed claim.
func (s *Service) RequestSession(ctx context.Context, requested CommunicationType) (SessionView, error) {
	kind, ok := ParseCommunicationType(string(requested))
	if !ok {
		return SessionView{}, apperr.Validation("unknown communication type %q", requested)
	}

	requester, err := s.createRequester(ctx)
	if err != nil {
		return SessionView{}, err
	}

	var (
		row    sessionRow
		worker registry.Worker
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.workers.WithTx(tx).Claim(ctx, kind.NeedsSpecialist())
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, registry.ErrClaimContention) {
				return fmt.Errorf("%w: nobody free for a %s session", apperr.ErrNoWorkerAvailable, kind)
			}
			return err
		}
		worker = claimed

		start := s.now()
		row = sessionRow{
			RequesterID:       requester.ID,
			WorkerID:          worker.ID,
			CommunicationType: string(kind),
			Status:            string(StatusActive),
			StartTime:         &start,
		}
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return s.audit.WithTx(tx).Append(ctx, fmt.Sprintf("Dr. %s started a %s session with %s.", worker.Name, kind, requester.AnonymousHandle))
	})
	if err != nil {
		return SessionView{}, err
	}

	view := SessionView{
		SessionID:  row.ID,
		WorkerID:   worker.ID,
		WorkerName: worker.Name,
		AccessURL:  s.accessURL(row.ID, kind),
	}
	s.logger.WithFields(logrus.Fields{
		"session_id": row.ID,
		"worker_id":  worker.ID,
		"type":       kind,
	}).Info("session allocated")

	message := fmt.Sprintf("New %s session request from %s. Please join now.", kind, requester.AnonymousHandle)
	s.notifier.Dispatch(ctx, notify.NewWorkerNotification(worker.ID, worker.Email, row.ID, message, view.AccessURL))
	body := fmt.Sprintf("Hello Dr. %s,\n\nYou have a new session request from %s.\n\nPlease join the session immediately using this link: %s\n\nThank you.",
		worker.Name, requester.AnonymousHandle, view.AccessURL)
	s.notifier.Dispatch(ctx, notify.NewMail(worker.Email, mailSubject, body))
	return view, nil
}

func (s *Service) createRequester(ctx context.Context) (Requester, error) {
	for attempt := 1; ; attempt++ {
		row := requesterRow{AnonymousHandle: ids.AnonymousHandle(), CreatedAt: s.now()}
		err := s.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			return row.toRecord(), nil
		}
		if !dbpkg.IsDuplicateKey(err) || attempt == maxHandleAttempts {
			return Requester{}, fmt.Errorf("create requester: %w", err)
		}
	}
}

func (s *Service) accessURL(sessionID uint, kind CommunicationType) string {
	room := "video"
	if kind == CommunicationChat {
		room = "chat"
	}
	return fmt.Sprintf("%s/session/%s/%d", s.baseURL, room, sessionID)
}

// Cancel moves an ACTIVE session to CANCELLED and frees its worker.
func (s *Service) Cancel(ctx context.Context, sessionID uint, reason, actor string) (Session, error) {
	reason = strings.TrimSpace(reason)
	return s.finish(ctx, sessionID, actor, StatusCancelled, reason, func(workerName, handle string) string {
		return fmt.Sprintf("Dr. %s cancelled a session with %s. Reason: %s", workerName, handle, reason)
	})
}

// End moves an ACTIVE session to COMPLETED and frees its worker.
func (s *Service) End(ctx context.Context, sessionID uint, actor string) (Session, error) {
	return s.finish(ctx, sessionID, actor, StatusCompleted, "", func(workerName, handle string) string {
		return fmt.Sprintf("Dr. %s completed a session with %s.", workerName, handle)
	})
}

func (s *Service) finish(ctx context.Context, sessionID uint, actor string, next Status, reason string, describe func(workerName, handle string) string) (Session, error) {
	var out Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		current := Status(row.Status)
		if current.Terminal() {
			return apperr.InvalidState("session %d is already %s", sessionID, current)
		}
		if current != StatusActive || !current.CanTransition(next) {
			return apperr.InvalidState("session %d is %s", sessionID, current)
		}
		workers := s.workers.WithTx(tx)
		worker, err := workers.Get(ctx, row.WorkerID)
		if err != nil {
			return err
		}
		if !sameActor(worker.Email, actor) {
			return apperr.Forbidden("session %d is not assigned to %s", sessionID, actor)
		}

		end := s.now()
		updates := map[string]any{
			"status":   string(next),
			"end_time": &end,
		}
		if next == StatusCancelled {
			updates["cancel_reason"] = reason
		}
		res := tx.Model(&sessionRow{}).
			Where("id = ? AND status = ?", sessionID, string(StatusActive)).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update session %d: %w", sessionID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidState("session %d is no longer active", sessionID)
		}
		if err := workers.Release(ctx, worker.ID); err != nil {
			return err
		}

		var requester requesterRow
		if err := tx.Where("id = ?", row.RequesterID).Take(&requester).Error; err != nil {
			return fmt.Errorf("load requester %d: %w", row.RequesterID, err)
		}
		if err := s.audit.WithTx(tx).Append(ctx, describe(worker.Name, requester.AnonymousHandle)); err != nil {
			return err
		}

		row.Status = string(next)
		row.EndTime = &end
		if next == StatusCancelled {
			row.CancelReason = reason
		}
		out = row.toRecord()
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"worker_id":  out.WorkerID,
		"status":     next,
	}).Info("session finished")
	return out, nil
}

// SubmitFeedback records the requester's rating of a completed session. Each
// session takes feedback once.
func (s *Service) SubmitFeedback(ctx context.Context, sessionID uint, rating int, comments string) (Feedback, error) {
	var out Feedback
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if Status(row.Status) != StatusCompleted {
			return apperr.InvalidState("feedback needs a completed session, session %d is %s", sessionID, row.Status)
		}
		var existing int64
		if err := tx.Model(&feedbackRow{}).Where("session_id = ?", sessionID).Count(&existing).Error; err != nil {
			return fmt.Errorf("check feedback: %w", err)
		}
		if existing > 0 {
			return apperr.AlreadyExists("feedback for session %d", sessionID)
		}
		if rating < minRating || rating > maxRating {
			return apperr.Validation("rating must be between %d and %d", minRating, maxRating)
		}

		fb := feedbackRow{
			SessionID:   sessionID,
			Rating:      rating,
			Comments:    strings.TrimSpace(comments),
			SubmittedAt: s.now(),
		}
		if err := tx.Omit(clause.Associations).Create(&fb).Error; err != nil {
			if dbpkg.IsDuplicateKey(err) {
				return apperr.AlreadyExists("feedback for session %d", sessionID)
			}
			return fmt.Errorf("create feedback: %w", err)
		}
		out = fb.toRecord()
		return nil
	})
	if err != nil {
		return Feedback{}, err
	}
	return out, nil
}

// CreateSummary files the worker's one-time clinical summary of a completed
// session. Duration is derived from the session times, never supplied.
func (s *Service) CreateSummary(ctx context.Context, sessionID uint, in SummaryInput, actor string) (Summary, error) {
	var out Summary
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if Status(row.Status) != StatusCompleted {
			return apperr.InvalidState("summary needs a completed session, session %d is %s", sessionID, row.Status)
		}
		worker, err := s.workers.WithTx(tx).Get(ctx, row.WorkerID)
		if err != nil {
			return err
		}
		if !sameActor(worker.Email, actor) {
			return apperr.Forbidden("session %d is not assigned to %s", sessionID, actor)
		}
		var existing int64
		if err := tx.Model(&summaryRow{}).Where("session_id = ?", sessionID).Count(&existing).Error; err != nil {
			return fmt.Errorf("check summary: %w", err)
		}
		if existing > 0 {
			return apperr.AlreadyExists("summary for session %d", sessionID)
		}
		if row.StartTime == nil || row.EndTime == nil {
			return apperr.InvalidState("session %d has no recorded start or end time", sessionID)
		}

		sum, err := s.summaryRowFromInput(sessionID, in)
		if err != nil {
			return err
		}
		sum.DurationInMinutes = DurationMinutes(*row.StartTime, *row.EndTime)
		if err := tx.Omit(clause.Associations).Create(&sum).Error; err != nil {
			if dbpkg.IsDuplicateKey(err) {
				return apperr.AlreadyExists("summary for session %d", sessionID)
			}
			return fmt.Errorf("create summary: %w", err)
		}
		out = sum.toRecord()
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *Service) summaryRowFromInput(sessionID uint, in SummaryInput) (summaryRow, error) {
	if strings.TrimSpace(in.RiskAssessment) == "" {
		return summaryRow{}, apperr.Validation("risk_assessment is required")
	}
	risk, ok := ParseRisk(in.RiskAssessment)
	if !ok {
		return summaryRow{}, apperr.Validation("unknown risk_assessment %q", in.RiskAssessment)
	}
	row := summaryRow{
		SessionID:         sessionID,
		IdentifiedIllness: strings.TrimSpace(in.IdentifiedIllness),
		City:              strings.TrimSpace(in.City),
		RiskAssessment:    string(risk),
		PrivateNotes:      strings.TrimSpace(in.PrivateNotes),
		CreatedAt:         s.now(),
	}
	if in.Age != nil {
		if *in.Age < 0 || *in.Age > 150 {
			return summaryRow{}, apperr.Validation("age %d is out of range", *in.Age)
		}
		age := *in.Age
		row.Age = &age
	}
	if strings.TrimSpace(in.Gender) != "" {
		gender, ok := ParseGender(in.Gender)
		if !ok {
			return summaryRow{}, apperr.Validation("unknown gender %q", in.Gender)
		}
		g := string(gender)
		row.Gender = &g
	}
	return row, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, sessionID uint) (Session, error) {
	row, err := loadSession(ctx, s.db, sessionID)
	if err != nil {
		return Session{}, err
	}
	return row.toRecord(), nil
}

func loadSession(ctx context.Context, db *gorm.DB, sessionID uint) (sessionRow, error) {
	var row sessionRow
	if err := db.WithContext(ctx).Where("id = ?", sessionID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return sessionRow{}, apperr.NotFound("session %d", sessionID)
		}
		return sessionRow{}, fmt.Errorf("load session %d: %w", sessionID, err)
	}
	return row, nil
}

func sameActor(workerEmail, actor string) bool {
	actor = strings.TrimSpace(actor)
	return actor != "" && strings.EqualFold(strings.TrimSpace(workerEmail), actor)
}
