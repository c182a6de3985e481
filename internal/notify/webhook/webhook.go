package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/KDHBuddhika/suwatha/internal/notify"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 1 << 20
)

type Option func(*Subscriber)

// Subscriber POSTs each event as JSON to a fixed URL.
type Subscriber struct {
	name       string
	URL        string
	httpClient *http.Client
	secret     string
	filter     func(notify.Kind) bool
}

func New(name string, url string, opts ...Option) *Subscriber {
	sub := &Subscriber{
		name:       strings.TrimSpace(name),
		URL:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	if sub.name == "" {
		sub.name = "webhook"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sub)
		}
	}
	return sub
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Subscriber) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithKindFilter(filter func(notify.Kind) bool) Option {
	return func(s *Subscriber) {
		s.filter = filter
	}
}

// WithSharedSecret sends secret in the X-Suwatha-Webhook-Secret header.
func WithSharedSecret(secret string) Option {
	return func(s *Subscriber) {
		s.secret = strings.TrimSpace(secret)
	}
}

func (s *Subscriber) Name() string {
	return s.name
}

func (s *Subscriber) Handle(ctx context.Context, event notify.Event) error {
	if s.filter != nil && !s.filter(event.Kind) {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set("X-Suwatha-Webhook-Secret", s.secret)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	errorBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes+1))
	if err != nil {
		return fmt.Errorf("webhook status=%d read body: %w", resp.StatusCode, err)
	}
	truncated := ""
	if len(errorBody) > maxErrorBodyBytes {
		errorBody = errorBody[:maxErrorBodyBytes]
		truncated = " (truncated)"
	}
	return fmt.Errorf("webhook status=%d body=%q%s", resp.StatusCode, string(errorBody), truncated)
}
