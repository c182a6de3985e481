package logging

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/KDHBuddhika/suwatha/internal/notify"
)

type Subscriber struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Subscriber {
	return &Subscriber{logger: logger}
}

func (s *Subscriber) Name() string {
	return "logging"
}

func (s *Subscriber) Handle(_ context.Context, event notify.Event) error {
	fields := logrus.Fields{
		"event_id": event.ID,
		"kind":     event.Kind,
	}
	if event.WorkerID != 0 {
		fields["worker_id"] = event.WorkerID
	}
	if event.SessionID != 0 {
		fields["session_id"] = event.SessionID
	}
	if event.Mail != nil {
		fields["mail_to"] = event.Mail.To
	}
	s.logger.WithFields(fields).Info(event.Message)
	return nil
}
