// Package mail delivers mail events over SMTP.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/KDHBuddhika/suwatha/internal/notify"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

type Subscriber struct {
	cfg  Config
	send sendFunc
	now  func() time.Time
}

func New(cfg Config) *Subscriber {
	return &Subscriber{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (s *Subscriber) Name() string {
	return "mail"
}

func (s *Subscriber) Handle(ctx context.Context, event notify.Event) error {
	if event.Kind != notify.KindMail || event.Mail == nil {
		return nil
	}
	to := strings.TrimSpace(event.Mail.To)
	if to == "" {
		return fmt.Errorf("mail %s has no recipient", event.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.send(addr, auth, s.cfg.From, []string{to}, s.message(to, event.Mail)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func (s *Subscriber) message(to string, m *notify.Mail) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", headerSafe(s.cfg.From))
	fmt.Fprintf(&b, "To: %s\r\n", headerSafe(to))
	fmt.Fprintf(&b, "Subject: %s\r\n", headerSafe(m.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func headerSafe(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
