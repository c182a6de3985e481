package reports

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/KDHBuddhika/suwatha/internal/registry"
	"github.com/KDHBuddhika/suwatha/internal/session"
)

const (
	maxVolumeDays  = 90
	dayLabelLayout = "2006-01-02"
)

type Statistics struct {
	TotalSessions    int64   `json:"total_sessions"`
	ActiveSessions   int64   `json:"active_sessions"`
	FinishedSessions int64   `json:"finished_sessions"`
	SessionsToday    int64   `json:"sessions_today"`
	TotalWorkers     int64   `json:"total_workers"`
	WorkersAvailable int64   `json:"workers_available"`
	WorkersBusy      int64   `json:"workers_busy"`
	WorkersOffline   int64   `json:"workers_offline"`
	AverageRating    float64 `json:"average_rating"`
}

type Bucket struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

type statusCount struct {
	Status string
	N      int64
}

// Statistics returns the dashboard headline numbers.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	var out Statistics
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sessions []statusCount
		if err := tx.Table("sessions").Select("status, COUNT(*) AS n").Group("status").Scan(&sessions).Error; err != nil {
			return fmt.Errorf("count sessions by status: %w", err)
		}
		for _, c := range sessions {
			out.TotalSessions += c.N
			switch session.Status(c.Status) {
			case session.StatusActive:
				out.ActiveSessions = c.N
			case session.StatusCompleted:
				out.FinishedSessions = c.N
			}
		}

		midnight := s.now().Truncate(24 * time.Hour)
		if err := tx.Table("sessions").Where("start_time >= ?", midnight).Count(&out.SessionsToday).Error; err != nil {
			return fmt.Errorf("count sessions today: %w", err)
		}

		var workers []statusCount
		if err := tx.Table("workers").Select("status, COUNT(*) AS n").Where("active = ?", true).Group("status").Scan(&workers).Error; err != nil {
			return fmt.Errorf("count workers by status: %w", err)
		}
		for _, c := range workers {
			out.TotalWorkers += c.N
			switch registry.Status(c.Status) {
			case registry.StatusAvailable:
				out.WorkersAvailable = c.N
			case registry.StatusBusy:
				out.WorkersBusy = c.N
			case registry.StatusOffline:
				out.WorkersOffline = c.N
			}
		}

		var avg sql.NullFloat64
		if err := tx.Table("session_feedback").Select("AVG(rating)").Scan(&avg).Error; err != nil {
			return fmt.Errorf("average rating: %w", err)
		}
		out.AverageRating = avg.Float64
		return nil
	})
	if err != nil {
		return Statistics{}, err
	}
	return out, nil
}

// IllnessDistribution counts summaries per identified illness, largest first.
func (s *Store) IllnessDistribution(ctx context.Context) ([]Bucket, error) {
	var out []Bucket
	err := s.db.WithContext(ctx).
		Table("session_summaries").
		Select("identified_illness AS label, COUNT(*) AS count").
		Where("identified_illness IS NOT NULL AND TRIM(identified_illness) <> ''").
		Group("identified_illness").
		Order("count DESC").
		Order("label ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("illness distribution: %w", err)
	}
	if out == nil {
		out = []Bucket{}
	}
	return out, nil
}

// DailyVolume counts sessions started on each of the last `days` UTC days,
// today included. Days without sessions are reported as zero.
func (s *Store) DailyVolume(ctx context.Context, days int) ([]Bucket, error) {
	if days <= 0 {
		days = 14
	}
	if days > maxVolumeDays {
		days = maxVolumeDays
	}
	today := s.now().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))

	var starts []time.Time
	err := s.db.WithContext(ctx).
		Table("sessions").
		Where("start_time >= ?", since).
		Pluck("start_time", &starts).Error
	if err != nil {
		return nil, fmt.Errorf("daily volume: %w", err)
	}

	counts := make(map[string]int64, days)
	for _, t := range starts {
		counts[t.UTC().Format(dayLabelLayout)]++
	}
	out := make([]Bucket, 0, days)
	for d := since; !d.After(today); d = d.AddDate(0, 0, 1) {
		label := d.Format(dayLabelLayout)
		out = append(out, Bucket{Label: label, Count: counts[label]})
	}
	return out, nil
}

// HourlyUsage counts every session by the UTC hour it started in. All 24
// hours are reported, labelled "00" to "23".
func (s *Store) HourlyUsage(ctx context.Context) ([]Bucket, error) {
	var starts []time.Time
	err := s.db.WithContext(ctx).
		Table("sessions").
		Where("start_time IS NOT NULL").
		Pluck("start_time", &starts).Error
	if err != nil {
		return nil, fmt.Errorf("hourly usage: %w", err)
	}

	var counts [24]int64
	for _, t := range starts {
		counts[t.UTC().Hour()]++
	}
	out := make([]Bucket, 0, len(counts))
	for hour, n := range counts {
		out = append(out, Bucket{Label: fmt.Sprintf("%02d", hour), Count: n})
	}
	return out, nil
}
