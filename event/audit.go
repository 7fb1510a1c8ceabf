package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/birdie-ai/mung/dml"
	"github.com/birdie-ai/mung/slog"
	"github.com/birdie-ai/mung/tracing"
	"github.com/birdie-ai/mung/value"
	"gocloud.dev/pubsub"
)

// WriteEventName is the name of the events published for write commands.
const WriteEventName = "mung.write"

type (
	// WriteEvent is the outcome of a successful write command.
	WriteEvent struct {
		Database   string      `json:"database"`
		Collection string      `json:"collection"`
		Verb       string      `json:"verb"`
		Command    string      `json:"command"`
		Outcome    value.Value `json:"outcome"`
	}

	// WriteAuditor publishes a [WriteEvent] for each audited write.
	WriteAuditor struct {
		topic     *pubsub.Topic
		publisher *Publisher[WriteEvent]
	}
)

// UnmarshalJSON implements [json.Unmarshaler].
func (e *WriteEvent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Database   string          `json:"database"`
		Collection string          `json:"collection"`
		Verb       string          `json:"verb"`
		Command    string          `json:"command"`
		Outcome    json.RawMessage `json:"outcome"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = WriteEvent{
		Database:   raw.Database,
		Collection: raw.Collection,
		Verb:       raw.Verb,
		Command:    raw.Command,
	}
	if len(raw.Outcome) == 0 {
		return nil
	}
	outcome, err := value.ParseJSON(raw.Outcome)
	if err != nil {
		return fmt.Errorf("parsing outcome: %w", err)
	}
	e.Outcome = outcome
	return nil
}

// NewWriteAuditor opens the topic identified by url and creates an auditor publishing to it.
// Call [WriteAuditor.Shutdown] to flush pending events and release the topic.
func NewWriteAuditor(ctx context.Context, url string) (*WriteAuditor, error) {
	topic, err := OpenTopic(ctx, url)
	if err != nil {
		return nil, err
	}
	return &WriteAuditor{
		topic:     topic,
		publisher: NewPublisher[WriteEvent](WriteEventName, topic),
	}, nil
}

// AuditWrite publishes the outcome of the write command. The database is taken from
// the context. Failures are logged and never returned.
func (a *WriteAuditor) AuditWrite(ctx context.Context, cmd dml.Command, outcome value.Value) {
	log := slog.FromCtx(ctx)
	text, err := dml.Format(cmd)
	if err != nil {
		log.Warn("formatting audited command", "error", err)
	}
	database, _ := tracing.CtxGetDatabase(ctx)
	evt := WriteEvent{
		Database:   database,
		Collection: cmd.CollectionName(),
		Verb:       cmd.Verb(),
		Command:    text,
		Outcome:    outcome,
	}
	if err := a.publisher.Publish(ctx, evt); err != nil {
		log.Warn("publishing audit event", "error", err, "verb", evt.Verb, "collection", evt.Collection)
	}
}

// Shutdown flushes pending events and closes the topic.
func (a *WriteAuditor) Shutdown(ctx context.Context) error {
	return a.topic.Shutdown(ctx)
}
