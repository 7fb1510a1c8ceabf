// Package event provides functionality for publish/suscribe of events.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/birdie-ai/mung/slog"
	"github.com/birdie-ai/mung/tracing"
	"gocloud.dev/pubsub"
)

type (
	// Publisher represents a publisher of events of type T.
	// The publisher guarantees that the events conform to the [Envelope] schema.
	Publisher[T any] struct {
		name  string
		topic *pubsub.Topic
	}

	// Envelope represents the general structure of the body of events.
	Envelope[T any] struct {
		RunID string `json:"run_id"`
		Name  string `json:"name"`
		Event T      `json:"event"`
	}

	// Subscription receives events of type T with a specific name.
	Subscription[T any] struct {
		name string
		sub  *pubsub.Subscription
	}

	// Message is a received event. Ack must be called once the event is handled.
	Message[T any] struct {
		Envelope[T]
		msg *pubsub.Message
	}
)

// OpenTopic opens the topic identified by the URL, like "mem://audit" or
// "gcppubsub://projects/myproject/topics/mytopic".
func OpenTopic(ctx context.Context, url string) (*pubsub.Topic, error) {
	topic, err := pubsub.OpenTopic(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening topic %q: %w", url, err)
	}
	return topic, nil
}

// NewPublisher creates a new event publisher for the given event name and topic.
func NewPublisher[T any](name string, t *pubsub.Topic) *Publisher[T] {
	return &Publisher[T]{
		name:  name,
		topic: t,
	}
}

// Publish will publish the given event. The run ID on the context, if any, goes on the envelope.
func (p *Publisher[T]) Publish(ctx context.Context, event T) error {
	runID, _ := tracing.CtxGetRunID(ctx)
	body, err := json.Marshal(Envelope[T]{
		RunID: runID,
		Name:  p.name,
		Event: event,
	})
	if err != nil {
		return fmt.Errorf("encoding event %q: %w", p.name, err)
	}

	start := time.Now()
	err = p.topic.Send(ctx, &pubsub.Message{Body: body})
	samplePublish(p.name, time.Since(start), len(body), err)
	if err != nil {
		return fmt.Errorf("publishing event %q: %w", p.name, err)
	}
	return nil
}

// NewSubscription opens the subscription identified by the URL. Only events named name
// are delivered, the others are acknowledged and dropped.
func NewSubscription[T any](ctx context.Context, name, url string) (*Subscription[T], error) {
	sub, err := pubsub.OpenSubscription(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening subscription %q: %w", url, err)
	}
	return &Subscription[T]{name: name, sub: sub}, nil
}

// Receive blocks until an event is available or the context is done.
func (s *Subscription[T]) Receive(ctx context.Context) (Message[T], error) {
	for {
		msg, err := s.sub.Receive(ctx)
		if err != nil {
			return Message[T]{}, err
		}
		var env Envelope[T]
		err = json.Unmarshal(msg.Body, &env)
		sampleReceive(s.name, len(msg.Body), err)
		if err != nil {
			slog.FromCtx(ctx).Warn("discarding malformed event", "error", err, "body", string(msg.Body))
			msg.Ack()
			continue
		}
		if env.Name != s.name {
			slog.FromCtx(ctx).Debug("discarding event", "name", env.Name, "want_name", s.name)
			msg.Ack()
			continue
		}
		return Message[T]{Envelope: env, msg: msg}, nil
	}
}

// Shutdown will shutdown the subscription. It should not be used after this method is called.
func (s *Subscription[T]) Shutdown(ctx context.Context) error {
	return s.sub.Shutdown(ctx)
}

// Ack acknowledges the message.
func (m Message[T]) Ack() {
	m.msg.Ack()
}
