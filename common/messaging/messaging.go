// Package messaging defines broker-neutral publish/subscribe interfaces used
// to announce investigation lifecycle changes and to accept asynchronous
// link requests.
package messaging

import (
	"context"
	"time"
)

// Message is a payload received from or sent to the broker.
type Message struct {
	Subject   string
	Data      []byte
	Reply     string
	Metadata  map[string]string
	Timestamp time.Time
}

// MessageHandler processes one delivered message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is an active interest in a subject.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher sends messages.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PublishJSON(ctx context.Context, subject string, v interface{}) error
	PublishMsg(ctx context.Context, msg *Message) error
	Close() error
}

// Subscriber receives messages. QueueSubscribe load-balances deliveries
// across every subscriber sharing the queue name.
type Subscriber interface {
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)
	Close() error
}

// Client is a full broker connection.
type Client interface {
	Publisher
	Subscriber
	Drain() error
	IsConnected() bool
}
