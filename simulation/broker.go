package simulation

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/simstation/errors"
)

// Publisher delivers encoded messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// Broker is a Publisher that can also deliver inbound messages to handlers.
// *natsclient.Client satisfies it.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, topic string, handler func(context.Context, []byte)) error
}

// PublishError reports a message the broker could not deliver. It is transient.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err)
}

// Unwrap exposes both ErrPublishFailed and the broker's own error.
func (e *PublishError) Unwrap() []error {
	return []error{errors.ErrPublishFailed, e.Err}
}

// Published is one message recorded by a MemoryBroker.
type Published struct {
	Topic string
	Data  []byte
}

// MemoryBroker is an in-process Broker. Publish delivers synchronously to every
// handler subscribed to the exact topic, in subscription order, and records the
// message.
type MemoryBroker struct {
	mu        sync.RWMutex
	handlers  map[string][]memorySubscription
	published []Published
	closed    bool
}

type memorySubscription struct {
	ctx     context.Context
	handler func(context.Context, []byte)
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{handlers: make(map[string][]memorySubscription)}
}

// Subscribe registers handler for topic. The subscription ends when ctx is done.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string, handler func(context.Context, []byte)) error {
	if handler == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "MemoryBroker", "Subscribe", "nil handler")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.WrapTransient(errors.ErrNoConnection, "MemoryBroker", "Subscribe", "broker closed")
	}
	b.handlers[topic] = append(b.handlers[topic], memorySubscription{ctx: ctx, handler: handler})
	return nil
}

// Publish records the message and hands a copy to each live subscriber of topic.
func (b *MemoryBroker) Publish(ctx context.Context, topic string, data []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return &PublishError{Topic: topic, Err: errors.ErrNoConnection}
	}
	b.published = append(b.published, Published{Topic: topic, Data: append([]byte{}, data...)})
	subs := append([]memorySubscription{}, b.handlers[topic]...)
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.ctx.Err() != nil {
			continue
		}
		sub.handler(sub.ctx, append([]byte{}, data...))
	}
	return nil
}

// Messages returns the messages published to topic so far, oldest first.
// An empty topic returns every message.
func (b *MemoryBroker) Messages(topic string) []Published {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Published
	for _, p := range b.published {
		if topic == "" || p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// Close drops all subscriptions. Later publishes fail.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string][]memorySubscription)
}
