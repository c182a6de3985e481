// Package rabbitmq publishes every notification to a RabbitMQ fanout exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/streadway/amqp"

	"github.com/KDHBuddhika/suwatha/internal/notify"
)

// Publisher defines the interface for publishing messages to RabbitMQ.
type Publisher interface {
	Publish(exchange string, body []byte) error
}

type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
}

func NewAMQPPublisher(amqpURL string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return &AMQPPublisher{conn: conn, channel: ch, declared: map[string]bool{}}, nil
}

// Publish declares the exchange on first use. amqp.Channel is not safe for
// concurrent publishing, so calls are serialized.
func (p *AMQPPublisher) Publish(exchange string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared[exchange] {
		if err := p.channel.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
		p.declared[exchange] = true
	}
	return p.channel.Publish(exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

type Subscriber struct {
	publisher Publisher
	exchange  string
}

func New(publisher Publisher, exchange string) *Subscriber {
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = "suwatha.notifications"
	}
	return &Subscriber{publisher: publisher, exchange: exchange}
}

func (s *Subscriber) Name() string {
	return "rabbitmq"
}

func (s *Subscriber) Handle(_ context.Context, event notify.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.publisher.Publish(s.exchange, body); err != nil {
		return fmt.Errorf("publish to %s: %w", s.exchange, err)
	}
	return nil
}
