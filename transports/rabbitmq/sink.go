// Package rabbitmq provides a queue-backed DataSink: load and audit records
// are published as persistent JSON messages to a durable queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/conveyr/conveyr-go/internal/reliability"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueSink publishes records to a single durable queue via the default
// exchange. Publishes are confirmed; an unconfirmed publish is an error.
type QueueSink struct {
	mu             sync.Mutex
	conn           *amqp.Connection
	channel        *amqp.Channel
	queue          string
	confirmTimeout time.Duration
	closed         bool
}

// QueueSinkOption configures the sink
type QueueSinkOption func(*QueueSink)

// WithConfirmTimeout sets how long to wait for the broker's confirmation
func WithConfirmTimeout(timeout time.Duration) QueueSinkOption {
	return func(s *QueueSink) {
		s.confirmTimeout = timeout
	}
}

// NewQueueSink dials the broker, opens a confirmed channel, and declares the
// target queue as durable.
func NewQueueSink(url, queue string, options ...QueueSinkOption) (*QueueSink, error) {
	sink := &QueueSink{
		queue:          queue,
		confirmTimeout: 5 * time.Second,
	}
	for _, opt := range options {
		opt(sink)
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq sink: dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq sink: open channel: %w", err)
	}
	if err := channel.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq sink: enable confirm mode: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq sink: declare queue %q: %w", queue, err)
	}

	sink.conn = conn
	sink.channel = channel
	return sink, nil
}

// Write implements pipeline.DataSink. Broker-side failures are transient so
// the executor's retry policy applies; encoding failures are permanent.
func (s *QueueSink) Write(ctx context.Context, operation string, value interface{}) error {
	publishing, err := buildPublishing(operation, value)
	if err != nil {
		return reliability.Permanent(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return reliability.Permanent(fmt.Errorf("rabbitmq sink: sink is closed"))
	}

	confirm, err := s.channel.PublishWithDeferredConfirmWithContext(ctx, "", s.queue, false, false, publishing)
	if err != nil {
		return fmt.Errorf("rabbitmq sink: publish to %q: %w", s.queue, err)
	}

	confirmCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	acked, err := confirm.WaitContext(confirmCtx)
	if err != nil {
		return fmt.Errorf("rabbitmq sink: await confirm for %q: %w", s.queue, err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq sink: publish to %q not confirmed", s.queue)
	}
	return nil
}

// Close releases the channel and connection
func (s *QueueSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.channel.Close(); err != nil {
		s.conn.Close()
		return fmt.Errorf("rabbitmq sink: close channel: %w", err)
	}
	return s.conn.Close()
}

// buildPublishing encodes a record as a persistent JSON message. The
// operation name travels in a header so consumers can route on it.
func buildPublishing(operation string, value interface{}) (amqp.Publishing, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("rabbitmq sink: encode record for %q: %w", operation, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers: amqp.Table{
			"x-operation": operation,
		},
		Body: body,
	}, nil
}
