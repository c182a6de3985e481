package registry

import "time"

type workerRow struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Name       string    `gorm:"size:191;not null"`
	Email      string    `gorm:"size:191;not null;uniqueIndex"`
	Specialist bool      `gorm:"not null;index:idx_workers_claim,priority:3"`
	Status     string    `gorm:"size:32;not null;index:idx_workers_claim,priority:2"`
	Active     bool      `gorm:"not null;index:idx_workers_claim,priority:1"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (workerRow) TableName() string {
	return "workers"
}

func (r workerRow) toRecord() Worker {
	return Worker{
		ID:         r.ID,
		Name:       r.Name,
		Email:      r.Email,
		Specialist: r.Specialist,
		Status:     Status(r.Status),
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}
