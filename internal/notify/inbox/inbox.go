// Package inbox keeps the in-app notification list each worker sees on
// their dashboard.
package inbox

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/KDHBuddhika/suwatha/internal/apperr"
	"github.com/KDHBuddhika/suwatha/internal/notify"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Notification struct {
	ID        uint      `json:"id"`
	WorkerID  uint      `json:"worker_id"`
	SessionID uint      `json:"session_id,omitempty"`
	Message   string    `json:"message"`
	LinkURL   string    `json:"link_url,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type notificationRow struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	EventID   string    `gorm:"size:64;not null;uniqueIndex"`
	WorkerID  uint      `gorm:"not null;index:idx_worker_notifications_worker,priority:1"`
	SessionID uint      `gorm:"not null"`
	Message   string    `gorm:"size:512;not null"`
	LinkURL   string    `gorm:"size:512"`
	Read      bool      `gorm:"column:is_read;not null;index:idx_worker_notifications_worker,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
}

func (notificationRow) TableName() string {
	return "worker_notifications"
}

func (r notificationRow) toRecord() Notification {
	return Notification{
		ID:        r.ID,
		WorkerID:  r.WorkerID,
		SessionID: r.SessionID,
		Message:   r.Message,
		LinkURL:   r.LinkURL,
		Read:      r.Read,
		CreatedAt: r.CreatedAt,
	}
}

// Store is both the notification subscriber and the read side behind the
// worker inbox routes.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&notificationRow{}); err != nil {
		return fmt.Errorf("migrate worker notifications: %w", err)
	}
	return nil
}

func (s *Store) Name() string {
	return "inbox"
}

// Handle stores session requests. A redelivered event is stored once.
func (s *Store) Handle(ctx context.Context, event notify.Event) error {
	if event.Kind != notify.KindSessionRequested || event.WorkerID == 0 {
		return nil
	}
	row := notificationRow{
		EventID:   event.ID,
		WorkerID:  event.WorkerID,
		SessionID: event.SessionID,
		Message:   event.Message,
		LinkURL:   event.LinkURL,
		CreatedAt: event.OccurredAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).Where(notificationRow{EventID: event.ID}).FirstOrCreate(&row)
	if res.Error != nil {
		return fmt.Errorf("store notification: %w", res.Error)
	}
	return nil
}

// List returns a worker's notifications, newest first.
func (s *Store) List(ctx context.Context, workerID uint, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q := s.db.WithContext(ctx).Where("worker_id = ?", workerID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var rows []notificationRow
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// MarkRead flags one of the worker's own notifications as read.
func (s *Store) MarkRead(ctx context.Context, workerID, id uint) error {
	res := s.db.WithContext(ctx).Model(&notificationRow{}).
		Where("id = ? AND worker_id = ?", id, workerID).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("notification %d", id)
	}
	return nil
}
