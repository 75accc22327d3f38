package queue

import "context"

// ProcessQueueName is the durable queue that carries processing triggers.
const ProcessQueueName = "notifications.process"

// Publisher publishes processing triggers to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg ProcessTrigger) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg ProcessTrigger) error

// Consumer consumes processing triggers from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}
