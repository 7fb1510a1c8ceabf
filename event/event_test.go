package event_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/birdie-ai/mung/dml"
	"github.com/birdie-ai/mung/event"
	"github.com/birdie-ai/mung/tracing"
	"github.com/birdie-ai/mung/value"
	"github.com/google/go-cmp/cmp"
	"gocloud.dev/pubsub"

	_ "gocloud.dev/pubsub/mempubsub"
)

func TestPublishEvent(t *testing.T) {
	t.Parallel()

	url := newTopicURL(t)
	ctx := context.Background()

	topic, err := event.OpenTopic(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(t, topic)

	subscription, err := pubsub.OpenSubscription(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(t, subscription)

	type Event struct {
		Field string `json:"field"`
	}
	const (
		eventName = "test"
		runID     = "run-id"
	)

	publisher := event.NewPublisher[Event](eventName, topic)
	wantEvt := Event{Field: "some data"}

	// the run ID stored on the context is propagated to the events.
	if err := publisher.Publish(tracing.CtxWithRunID(ctx, runID), wantEvt); err != nil {
		t.Fatal(err)
	}

	gotMsg, err := subscription.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	gotMsg.Ack()

	want := event.Envelope[Event]{
		RunID: runID,
		Name:  eventName,
		Event: wantEvt,
	}
	var got event.Envelope[Event]
	if err := json.Unmarshal(gotMsg.Body, &got); err != nil {
		t.Fatal(err)
	}
	assertEqual(t, got, want)
}

func TestPublishEventWithoutRunID(t *testing.T) {
	t.Parallel()

	url := newTopicURL(t)
	ctx := context.Background()

	topic, err := event.OpenTopic(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(t, topic)

	subscription, err := pubsub.OpenSubscription(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(t, subscription)

	publisher := event.NewPublisher[int]("number", topic)
	if err := publisher.Publish(ctx, 7); err != nil {
		t.Fatal(err)
	}

	gotMsg, err := subscription.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	gotMsg.Ack()

	assertEqual(t, string(gotMsg.Body), `{"run_id":"","name":"number","event":7}`)
}

func TestSubscriptionReceive(t *testing.T) {
	t.Parallel()

	type Event struct {
		ID int `json:"id"`
	}

	url := newTopicURL(t)
	ctx := context.Background()

	topic, err := event.OpenTopic(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(t, topic)

	subscription, err := event.NewSubscription[Event](ctx, "wanted", url)
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(t, subscription)

	// events with other names and malformed messages are dropped.
	if err := event.NewPublisher[Event]("other", topic).Publish(ctx, Event{ID: 666}); err != nil {
		t.Fatal(err)
	}
	if err := topic.Send(ctx, &pubsub.Message{Body: []byte("not json")}); err != nil {
		t.Fatal(err)
	}
	publisher := event.NewPublisher[Event]("wanted", topic)
	if err := publisher.Publish(tracing.CtxWithRunID(ctx, "run"), Event{ID: 1}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg, err := subscription.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	msg.Ack()
	assertEqual(t, msg.Envelope, event.Envelope[Event]{RunID: "run", Name: "wanted", Event: Event{ID: 1}})

	ctx2, cancel2 := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel2()
	if msg, err := subscription.Receive(ctx2); err == nil {
		t.Fatalf("got unexpected event %+v", msg.Envelope)
	}
}

func TestOpenTopicInvalidURL(t *testing.T) {
	t.Parallel()

	if _, err := event.OpenTopic(context.Background(), "nope://topic"); err == nil {
		t.Fatal("want error for unregistered scheme")
	}
	if _, err := event.NewSubscription[int](context.Background(), "n", "mem://"+t.Name()+"-missing"); err == nil {
		t.Fatal("want error subscribing to a missing topic")
	}
}

func TestWriteAuditor(t *testing.T) {
	t.Parallel()

	url := newTopicURL(t)
	ctx := context.Background()

	auditor, err := event.NewWriteAuditor(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	subscription, err := event.NewSubscription[event.WriteEvent](ctx, event.WriteEventName, url)
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(t, subscription)

	expr, err := dml.Parse([]byte(`db.users.remove({age: {$lt: 18}})`))
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := dml.Translate(expr)
	if err != nil {
		t.Fatal(err)
	}
	outcome := value.NewObject(value.Field{Key: "nRemoved", Value: value.Int(3)})

	runCtx := tracing.CtxWithDatabase(tracing.CtxWithRunID(ctx, "run-1"), "shop")
	auditor.AuditWrite(runCtx, cmd, outcome)
	if err := auditor.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := subscription.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	msg.Ack()

	text, err := dml.Format(cmd)
	if err != nil {
		t.Fatal(err)
	}
	want := event.Envelope[event.WriteEvent]{
		RunID: "run-1",
		Name:  event.WriteEventName,
		Event: event.WriteEvent{
			Database:   "shop",
			Collection: "users",
			Verb:       "remove",
			Command:    text,
			Outcome:    outcome,
		},
	}
	if diff := cmp.Diff(want, msg.Envelope, cmp.Comparer(value.Equal)); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteAuditorPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	auditor, err := event.NewWriteAuditor(ctx, newTopicURL(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := auditor.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	expr, err := dml.Parse([]byte(`db.c.insert({})`))
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := dml.Translate(expr)
	if err != nil {
		t.Fatal(err)
	}
	// publishing on a closed topic fails, the failure is only logged
	auditor.AuditWrite(ctx, cmd, value.NewObject())
}

func TestWriteEventUnmarshal(t *testing.T) {
	t.Parallel()

	var got event.WriteEvent
	data := `{"database":"d","collection":"c","verb":"update","command":"db.c.update({}, {})","outcome":{"nMatched":1,"nModified":0}}`
	if err := json.Unmarshal([]byte(data), &got); err != nil {
		t.Fatal(err)
	}
	want := event.WriteEvent{
		Database:   "d",
		Collection: "c",
		Verb:       "update",
		Command:    "db.c.update({}, {})",
		Outcome: value.NewObject(
			value.Field{Key: "nMatched", Value: value.Int(1)},
			value.Field{Key: "nModified", Value: value.Int(0)},
		),
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(value.Equal)); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}

	if err := json.Unmarshal([]byte(`{"outcome":{`), &got); err == nil {
		t.Fatal("want error for malformed event")
	}
}

type shutdowner interface {
	Shutdown(context.Context) error
}

func shutdown(t *testing.T, s shutdowner) {
	t.Helper()

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func newTopicURL(t *testing.T) string {
	return "mem://" + t.Name()
}

func assertEqual[T any](t *testing.T, got T, want T) {
	t.Helper()

	if diff := cmp.Diff(got, want); diff != "" {
		t.Logf("got: %v", got)
		t.Logf("want: %v", want)
		t.Fatalf("diff: %v", diff)
	}
}
