// Package events publishes relay events to RabbitMQ for external consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/config"
)

// amqpChannel is the subset of *amqp091.Channel used by the publisher.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Envelope wraps every published event.
type Envelope struct {
	Type      string    `json:"type"`
	ProjectID string    `json:"projectId"`
	Timestamp time.Time `json:"timestamp"`
	Event     any       `json:"event"`
}

// Publisher sends events to the configured queues. A Publisher built without
// RABBITMQ_URL, or a nil *Publisher, drops every event.
type Publisher struct {
	mu             sync.Mutex
	conn           *amqp091.Connection
	channel        amqpChannel
	enabled        bool
	queue          string
	prefix         string
	specificEvents map[string]bool
	declared       map[string]bool
}

// NewPublisher connects to RabbitMQ. Connection failures disable publishing
// instead of failing startup.
func NewPublisher(cfg *config.Config) *Publisher {
	p := newPublisher(cfg.RabbitMQQueue, cfg.RabbitMQQueuePrefix, cfg.RabbitMQSpecificEvents)

	if cfg.RabbitMQURL == "" {
		log.Info().Msg("RABBITMQ_URL is not set. RabbitMQ publishing disabled.")
		return p
	}

	conn, err := amqp091.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Error().Err(err).Msg("Could not connect to RabbitMQ")
		return p
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		log.Error().Err(err).Msg("Could not open RabbitMQ channel")
		return p
	}

	p.conn = conn
	p.channel = channel
	p.enabled = true
	log.Info().
		Str("queue", p.queue).
		Str("prefix", p.prefix).
		Msg("RabbitMQ connection established.")
	return p
}

func newPublisher(queue, prefix string, specific []string) *Publisher {
	p := &Publisher{
		queue:          queue,
		prefix:         prefix,
		specificEvents: make(map[string]bool),
		declared:       make(map[string]bool),
	}
	for _, eventType := range specific {
		if !IsValidEventType(eventType) {
			log.Warn().Str("eventType", eventType).Msg("Ignoring unknown event type in AMQP_SPECIFIC_EVENTS")
			continue
		}
		p.specificEvents[eventType] = true
	}
	if len(p.specificEvents) > 0 {
		log.Info().Interface("specificEvents", p.specificEvents).Msg("Specific RabbitMQ events configured")
	}
	return p
}

// Enabled reports whether events are actually published.
func (p *Publisher) Enabled() bool {
	return p != nil && p.enabled
}

// QueueName returns the queue an event type is published on.
func (p *Publisher) QueueName(eventType string) string {
	if p.specificEvents[eventType] {
		return p.prefix + "_" + strings.ToLower(eventType)
	}
	return p.prefix + "_" + p.queue
}

// Publish sends one event. Errors are logged and returned; callers never
// depend on publishing to complete a relay.
func (p *Publisher) Publish(ctx context.Context, eventType, projectID string, event any) error {
	if !p.Enabled() {
		return nil
	}

	body, err := json.Marshal(Envelope{
		Type:      eventType,
		ProjectID: projectID,
		Timestamp: time.Now().UTC(),
		Event:     event,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	queueName := p.QueueName(eventType)

	// amqp channels are not safe for concurrent use
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared[queueName] {
		_, err := p.channel.QueueDeclare(
			queueName,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			log.Error().Err(err).Str("queue", queueName).Msg("Could not declare RabbitMQ queue")
			return fmt.Errorf("could not declare queue %s: %w", queueName, err)
		}
		p.declared[queueName] = true
	}

	err = p.channel.PublishWithContext(ctx,
		"",        // exchange (default)
		queueName, // routing key = queue
		false,     // mandatory
		false,     // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		log.Error().Err(err).
			Str("eventType", eventType).
			Str("queue", queueName).
			Str("projectID", projectID).
			Msg("Failed to publish to RabbitMQ")
		return fmt.Errorf("could not publish to %s: %w", queueName, err)
	}

	log.Debug().
		Str("eventType", eventType).
		Str("queue", queueName).
		Str("projectID", projectID).
		Msg("Published event to RabbitMQ")
	return nil
}

// Close shuts the channel and the connection down.
func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
	if err := p.channel.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing RabbitMQ channel")
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
