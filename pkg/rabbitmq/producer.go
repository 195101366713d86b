/**
 * @description
 * This package provides a producer for publishing worker-fleet commands to
 * RabbitMQ. It encapsulates the logic for connecting to the broker and
 * publishing persistent messages to durable, queue-addressed destinations.
 *
 * @dependencies
 * - context, encoding/json, sync, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when a publish is attempted without a live
// broker channel. Callers map it to a 503 so clients can retry.
var ErrNotConnected = errors.New("rabbitmq channel is not connected")

// Publisher is the interface implemented by types that can publish worker commands.
type Publisher interface {
	Publish(ctx context.Context, queue string, body interface{}) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
// The mutex guards the channel swap performed by the reopen retry, which can
// run from concurrent request goroutines.
type EventProducer struct {
	conn    *amqp091.Connection
	mu      sync.Mutex
	channel *amqp091.Channel
}

// DisconnectedProducer is a Publisher used when RabbitMQ is unavailable at
// startup. Every publish fails with ErrNotConnected so the caller surfaces a
// retryable 503 instead of silently dropping worker commands.
type DisconnectedProducer struct{}

func (p *DisconnectedProducer) Publish(ctx context.Context, queue string, body interface{}) error {
	log.Printf("level=warn component=rabbitmq_producer mode=disconnected msg=\"publish rejected\" queue=%s", queue)
	return ErrNotConnected
}

func (p *DisconnectedProducer) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer creates and returns a new EventProducer.
func NewEventProducer(amqpURL string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Bounded dial timeout so startup does not hang indefinitely.
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch}, nil
}

// Publish sends a persistent JSON message to a durable queue via the default
// exchange. The queue is declared on every publish, which keeps the worker
// contract self-provisioning.
func (p *EventProducer) Publish(ctx context.Context, queue string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return ErrNotConnected
	}

	if _, err := p.channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"queue declare failed; reopening channel\" queue=%s err=%v", queue, err)
		if p.conn == nil {
			return ErrNotConnected
		}
		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return ErrNotConnected
		}
		p.channel = ch
		if _, err2 := p.channel.QueueDeclare(queue, true, false, false, false, nil); err2 != nil {
			return err2
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=rabbitmq_producer msg=\"json marshal failed\" queue=%s err=%v", queue, err)
		return err
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         jsonBody,
	}

	err = p.channel.PublishWithContext(ctx, "", queue, false, false, publishing)
	if err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" queue=%s err=%v", queue, err)
		// One-shot retry: reopen channel and try again.
		if p.conn != nil {
			if ch, chErr := p.conn.Channel(); chErr == nil {
				p.channel = ch
				if _, qErr := p.channel.QueueDeclare(queue, true, false, false, false, nil); qErr == nil {
					if err = p.channel.PublishWithContext(ctx, "", queue, false, false, publishing); err == nil {
						return nil
					}
				}
			}
		}
		return err
	}
	return nil
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
