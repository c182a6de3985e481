package session

import (
	"time"

	"github.com/KDHBuddhika/suwatha/internal/query"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// COMPLETED and CANCELLED are terminal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func ParseStatus(raw string) (Status, bool) {
	return query.ParseEnum(raw, StatusPending, StatusActive, StatusCompleted, StatusCancelled)
}

type CommunicationType string

const (
	CommunicationChat         CommunicationType = "CHAT"
	CommunicationVideo        CommunicationType = "VIDEO"
	CommunicationSpecialNeeds CommunicationType = "SPECIAL_NEEDS"
)

// NeedsSpecialist reports whether only specialist workers may take the session.
func (c CommunicationType) NeedsSpecialist() bool {
	return c == CommunicationSpecialNeeds
}

func ParseCommunicationType(raw string) (CommunicationType, bool) {
	return query.ParseEnum(raw, CommunicationChat, CommunicationVideo, CommunicationSpecialNeeds)
}

type Risk string

const (
	RiskHigh     Risk = "HIGH"
	RiskModerate Risk = "MODERATE"
	RiskLow      Risk = "LOW"
	RiskNone     Risk = "NONE"
)

var Risks = []Risk{RiskHigh, RiskModerate, RiskLow, RiskNone}

func ParseRisk(raw string) (Risk, bool) {
	return query.ParseEnum(raw, Risks...)
}

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

func ParseGender(raw string) (Gender, bool) {
	return query.ParseEnum(raw, GenderMale, GenderFemale, GenderOther)
}

type Requester struct {
	ID              uint      `json:"id"`
	AnonymousHandle string    `json:"anonymous_handle"`
	CreatedAt       time.Time `json:"created_at"`
}

type Session struct {
	ID                uint              `json:"id"`
	RequesterID       uint              `json:"requester_id"`
	WorkerID          uint              `json:"worker_id"`
	CommunicationType CommunicationType `json:"communication_type"`
	Status            Status            `json:"status"`
	StartTime         *time.Time        `json:"start_time,omitempty"`
	EndTime           *time.Time        `json:"end_time,omitempty"`
	CancelReason      string            `json:"cancel_reason,omitempty"`
}

// SessionView is what a requester gets back from a successful allocation.
type SessionView struct {
	SessionID  uint   `json:"session_id"`
	WorkerID   uint   `json:"worker_id"`
	WorkerName string `json:"worker_name"`
	AccessURL  string `json:"access_url"`
}

type Feedback struct {
	ID          uint      `json:"id"`
	SessionID   uint      `json:"session_id"`
	Rating      int       `json:"rating"`
	Comments    string    `json:"comments,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type SummaryInput struct {
	IdentifiedIllness string `json:"identified_illness"`
	City              string `json:"city"`
	Age               *int   `json:"age,omitempty"`
	Gender            string `json:"gender,omitempty"`
	RiskAssessment    string `json:"risk_assessment"`
	PrivateNotes      string `json:"private_notes,omitempty"`
}

type Summary struct {
	SessionID         uint      `json:"session_id"`
	IdentifiedIllness string    `json:"identified_illness"`
	City              string    `json:"city"`
	Age               *int      `json:"age,omitempty"`
	Gender            Gender    `json:"gender,omitempty"`
	DurationInMinutes int64     `json:"duration_in_minutes"`
	RiskAssessment    Risk      `json:"risk_assessment"`
	PrivateNotes      string    `json:"private_notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type ActivityEntry struct {
	ID          uint      `json:"id"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// DurationMinutes rounds the whole seconds between start and end up to the
// next minute. 61 seconds is 2 minutes.
func DurationMinutes(start, end time.Time) int64 {
	secs := int64(end.Sub(start) / time.Second)
	if secs <= 0 {
		return 0
	}
	return (secs + 59) / 60
}
