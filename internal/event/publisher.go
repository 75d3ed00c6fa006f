// Package event announces completed quiz sessions to other services.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/pavelanni/edulingo/internal/model"
)

// TypeSessionCompleted is the event type and routing key of a finished
// quiz session.
const TypeSessionCompleted = "session.completed"

// DefaultExchange is the topic exchange events are published to.
const DefaultExchange = "edulingo.events"

const publishTimeout = 5 * time.Second

// SessionCompleted is the payload of a session.completed event.
type SessionCompleted struct {
	Type     string              `json:"type"`
	Identity string              `json:"identity"`
	Result   model.SessionResult `json:"result"`
}

// NewSessionCompleted builds the event for identity's result.
func NewSessionCompleted(identity string, r model.SessionResult) SessionCompleted {
	return SessionCompleted{Type: TypeSessionCompleted, Identity: identity, Result: r}
}

// Publisher delivers events.
type Publisher interface {
	PublishSessionCompleted(ctx context.Context, e SessionCompleted) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishSessionCompleted(context.Context, SessionCompleted) error { return nil }
func (Nop) Close() error                                                     { return nil }

// AMQPPublisher publishes JSON events to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// NewAMQPPublisher connects to url and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	slog.Info("event publisher connected", "exchange", exchange)
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) PublishSessionCompleted(ctx context.Context, e SessionCompleted) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		e.Type,     // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	slog.Debug("published event", "type", e.Type, "identity", e.Identity)
	return nil
}

func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
