package session

import "time"

// workerRef lets session rows carry a foreign key into the registry's table.
type workerRef struct {
	ID uint `gorm:"primaryKey"`
}

func (workerRef) TableName() string {
	return "workers"
}

type requesterRow struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	AnonymousHandle string    `gorm:"size:64;not null;uniqueIndex"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (requesterRow) TableName() string {
	return "requesters"
}

func (r requesterRow) toRecord() Requester {
	return Requester{ID: r.ID, AnonymousHandle: r.AnonymousHandle, CreatedAt: r.CreatedAt}
}

type sessionRow struct {
	ID                uint         `gorm:"primaryKey;autoIncrement"`
	RequesterID       uint         `gorm:"not null;index"`
	Requester         requesterRow `gorm:"foreignKey:RequesterID;constraint:OnDelete:RESTRICT"`
	WorkerID          uint         `gorm:"not null;index"`
	Worker            workerRef    `gorm:"foreignKey:WorkerID;constraint:OnDelete:RESTRICT"`
	CommunicationType string       `gorm:"size:32;not null"`
	Status            string       `gorm:"size:32;not null;index"`
	StartTime         *time.Time   `gorm:"index"`
	EndTime           *time.Time
	CancelReason      string `gorm:"type:text"`
}

func (sessionRow) TableName() string {
	return "sessions"
}

func (r sessionRow) toRecord() Session {
	return Session{
		ID:                r.ID,
		RequesterID:       r.RequesterID,
		WorkerID:          r.WorkerID,
		CommunicationType: CommunicationType(r.CommunicationType),
		Status:            Status(r.Status),
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		CancelReason:      r.CancelReason,
	}
}

type feedbackRow struct {
	ID          uint       `gorm:"primaryKey;autoIncrement"`
	SessionID   uint       `gorm:"not null;uniqueIndex"`
	Session     sessionRow `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Rating      int        `gorm:"not null"`
	Comments    string     `gorm:"type:text"`
	SubmittedAt time.Time  `gorm:"not null"`
}

func (feedbackRow) TableName() string {
	return "session_feedback"
}

func (r feedbackRow) toRecord() Feedback {
	return Feedback{
		ID:          r.ID,
		SessionID:   r.SessionID,
		Rating:      r.Rating,
		Comments:    r.Comments,
		SubmittedAt: r.SubmittedAt,
	}
}

type summaryRow struct {
	SessionID         uint       `gorm:"primaryKey;autoIncrement:false"`
	Session           sessionRow `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	IdentifiedIllness string     `gorm:"size:191;index"`
	City              string     `gorm:"size:191;index"`
	Age               *int
	Gender            *string   `gorm:"size:16"`
	DurationInMinutes int64     `gorm:"not null"`
	RiskAssessment    string    `gorm:"size:16;not null;index"`
	PrivateNotes      string    `gorm:"type:text"`
	CreatedAt         time.Time `gorm:"not null"`
}

func (summaryRow) TableName() string {
	return "session_summaries"
}

func (r summaryRow) toRecord() Summary {
	out := Summary{
		SessionID:         r.SessionID,
		IdentifiedIllness: r.IdentifiedIllness,
		City:              r.City,
		Age:               r.Age,
		DurationInMinutes: r.DurationInMinutes,
		RiskAssessment:    Risk(r.RiskAssessment),
		PrivateNotes:      r.PrivateNotes,
		CreatedAt:         r.CreatedAt,
	}
	if r.Gender != nil {
		out.Gender = Gender(*r.Gender)
	}
	return out
}

type activityRow struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Description string    `gorm:"size:512;not null"`
	Timestamp   time.Time `gorm:"not null;index"`
}

func (activityRow) TableName() string {
	return "activity_logs"
}

func (r activityRow) toRecord() ActivityEntry {
	return ActivityEntry{ID: r.ID, Description: r.Description, Timestamp: r.Timestamp}
}
