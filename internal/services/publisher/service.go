// Package publisher publishes wake cycle status changes to RabbitMQ as CloudEvents.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fgeck/gowol-homelab/internal/models"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	// DefaultExchange is used when the configuration names none.
	DefaultExchange = "wol.events"
	// EventType is the CloudEvents type of every published event.
	EventType = "homelab.wol.status.changed"
	// EventSource identifies this daemon in published events.
	EventSource = "/gowol-homelab"

	routingKeyPrefix = "wol.status."
	publishTimeout   = 5 * time.Second
)

// Channel is the subset of *amqp.Channel used by the publisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// CloudEvent represents the CloudEvents 1.0 specification structure.
type CloudEvent struct {
	SpecVersion     string     `json:"specversion"`
	Type            string     `json:"type"`
	Source          string     `json:"source"`
	Subject         string     `json:"subject,omitempty"`
	ID              string     `json:"id"`
	Time            string     `json:"time"`
	DataContentType string     `json:"datacontenttype"`
	Data            StatusData `json:"data"`
}

// StatusData is the payload of a status event.
type StatusData struct {
	Phase   string `json:"phase"`
	Status  string `json:"status"`
	Target  string `json:"target,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	Cycle   uint64 `json:"cycle"`
}

// Publisher sends status events to a topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string
	newID    func() string
	logger   zerolog.Logger
}

// New connects to RabbitMQ and declares the exchange.
func New(logger zerolog.Logger, cfg models.AMQPConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := NewWithChannel(logger, channel, cfg.Exchange)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewWithChannel creates a publisher on an open channel (for testing).
func NewWithChannel(logger zerolog.Logger, channel Channel, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &Publisher{
		channel:  channel,
		exchange: exchange,
		newID:    func() string { return uuid.New().String() },
		logger:   logger,
	}, nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// RoutingKey returns the routing key for phase, e.g. wol.status.probing.
func RoutingKey(phase string) string {
	return routingKeyPrefix + phase
}

// Notify publishes ev. Every status change is published.
func (p *Publisher) Notify(ctx context.Context, ev models.StatusEvent) error {
	event := p.createEvent(ev)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := RoutingKey(ev.Phase)
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/cloudevents+json",
			Body:        body,
			MessageId:   event.ID,
			Timestamp:   ev.Time,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug().
		Str("id", event.ID).
		Str("routing_key", key).
		Uint64("cycle", ev.Cycle).
		Msg("status event published")

	return nil
}

func (p *Publisher) createEvent(ev models.StatusEvent) CloudEvent {
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	return CloudEvent{
		SpecVersion:     "1.0",
		Type:            EventType,
		Source:          EventSource,
		Subject:         ev.Target,
		ID:              p.newID(),
		Time:            at.UTC().Format(time.RFC3339Nano),
		DataContentType: "application/json",
		Data: StatusData{
			Phase:   ev.Phase,
			Status:  ev.Status,
			Target:  ev.Target,
			Attempt: ev.Attempt,
			Cycle:   ev.Cycle,
		},
	}
}
