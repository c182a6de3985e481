package session

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

const (
	maxActivityDescription = 512
	defaultActivityLimit   = 50
)

// AuditLog is the append-only activity feed. Timestamps are assigned here.
type AuditLog struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (a *AuditLog) WithTx(tx *gorm.DB) *AuditLog {
	return &AuditLog{db: tx, now: a.now}
}

func (a *AuditLog) Append(ctx context.Context, description string) error {
	row := activityRow{
		Description: truncateRunes(description, maxActivityDescription),
		Timestamp:   a.now(),
	}
	if err := a.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries first.
func (a *AuditLog) ListRecent(ctx context.Context, limit int) ([]ActivityEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultActivityLimit
	}
	var rows []activityRow
	if err := a.db.WithContext(ctx).Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	out := make([]ActivityEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// ListForDate returns the entries logged on the UTC calendar day containing
// day, oldest first.
func (a *AuditLog) ListForDate(ctx context.Context, day time.Time) ([]ActivityEntry, error) {
	from := day.UTC().Truncate(24 * time.Hour)
	to := from.AddDate(0, 0, 1)
	var rows []activityRow
	err := a.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list activity for %s: %w", from.Format("2006-01-02"), err)
	}
	out := make([]ActivityEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
