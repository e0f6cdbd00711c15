package contact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"coralbricks/internal/config"
	"coralbricks/internal/models"
)

const EventSubmitted = "contact.submitted"

// Event is the lead notification sent after a submission.
type Event struct {
	Type       string                   `json:"type"`
	OccurredAt time.Time                `json:"occurred_at"`
	Submission models.ContactSubmission `json:"submission"`
}

func NewSubmittedEvent(sub *models.ContactSubmission) Event {
	return Event{Type: EventSubmitted, OccurredAt: time.Now().UTC(), Submission: *sub}
}

// Publisher delivers lead events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// RabbitPublisher publishes events to a durable RabbitMQ queue.
type RabbitPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitPublisher dials RabbitMQ and declares the queue.
func NewRabbitPublisher(cfg config.RabbitMQConfig) (*RabbitPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	return &RabbitPublisher{conn: conn, ch: ch, queue: cfg.Queue}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.ch == nil {
		return errors.New("rabbitmq publisher not initialised")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         event.Type,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
}

func (p *RabbitPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
