// Package queue provides the priority queue abstraction judge requests
// travel through. The broker keeps one Redis sorted set per queue; the
// score encodes priority then arrival order, so a lower priority value
// pops sooner and FIFO holds within one priority band.
package queue

import (
	"context"
	"encoding/json"
)

// Judge request priorities. Lower value pops sooner, so interactive
// submissions preempt rejudge backfill.
const (
	PriorityNormal  = 0
	PriorityRejudge = 10
)

// Message is the broker envelope around a queue payload
type Message struct {
	// MessageID uniquely identifies one enqueued message
	MessageID string `json:"message_id"`

	// RetryCount is the number of redeliveries so far
	RetryCount int `json:"retry_count"`

	// Payload is the application message body
	Payload json.RawMessage `json:"payload"`
}

// Producer defines the interface for publishing messages
type Producer interface {
	// Publish wraps payload in a fresh envelope and enqueues it
	Publish(ctx context.Context, queue string, priority int, payload interface{}) error
}

// Consumer defines the interface for draining messages
type Consumer interface {
	// Pop removes and returns the lowest-scored message.
	// Returns nil without error when the queue is empty.
	Pop(ctx context.Context, queue string) (*Message, error)

	// Nack re-adds a delivered message with its retry count bumped.
	// Returns false when the retry budget is exhausted and the message
	// was not requeued.
	Nack(ctx context.Context, queue string, priority int, msg *Message) (bool, error)

	// Depth returns the number of messages waiting in the queue
	Depth(ctx context.Context, queue string) (int64, error)
}

// Broker is the full queue surface
type Broker interface {
	Producer
	Consumer

	// Ping verifies the broker connection is alive
	Ping(ctx context.Context) error

	// Close closes the broker connection
	Close() error
}
