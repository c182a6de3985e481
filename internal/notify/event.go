// Package notify fans session events out to worker-facing channels.
package notify

import (
	"context"
	"time"

	"github.com/KDHBuddhika/suwatha/internal/ids"
)

type Kind string

const (
	// KindSessionRequested tells a worker a requester is waiting for them.
	KindSessionRequested Kind = "session.requested"
	// KindMail asks for an email to be sent.
	KindMail Kind = "mail"
)

type Event struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	OccurredAt  time.Time `json:"occurred_at"`
	WorkerID    uint      `json:"worker_id,omitempty"`
	WorkerEmail string    `json:"worker_email,omitempty"`
	SessionID   uint      `json:"session_id,omitempty"`
	Message     string    `json:"message,omitempty"`
	LinkURL     string    `json:"link_url,omitempty"`
	Mail        *Mail     `json:"mail,omitempty"`
}

type Mail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func NewWorkerNotification(workerID uint, workerEmail string, sessionID uint, message, linkURL string) Event {
	return Event{
		ID:          ids.New(),
		Kind:        KindSessionRequested,
		OccurredAt:  time.Now().UTC(),
		WorkerID:    workerID,
		WorkerEmail: workerEmail,
		SessionID:   sessionID,
		Message:     message,
		LinkURL:     linkURL,
	}
}

func NewMail(to, subject, body string) Event {
	return Event{
		ID:         ids.New(),
		Kind:       KindMail,
		OccurredAt: time.Now().UTC(),
		Mail:       &Mail{To: to, Subject: subject, Body: body},
	}
}

// Subscriber receives dispatched events. Handle should ignore kinds it does not serve.
type Subscriber interface {
	Name() string
	Handle(context.Context, Event) error
}

// Sender is what producers depend on. Dispatch must not block on delivery.
type Sender interface {
	Dispatch(context.Context, Event)
}
