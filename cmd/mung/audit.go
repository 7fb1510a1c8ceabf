package main

import (
	"bufio"
	"context"
	"fmt"

	"github.com/birdie-ai/mung/config"
	"github.com/birdie-ai/mung/event"
	"github.com/birdie-ai/mung/executor"
	"github.com/birdie-ai/mung/slog"
	"github.com/birdie-ai/mung/value"
	"github.com/birdie-ai/mung/xerrors"
	"github.com/birdie-ai/mung/xjson"
	"github.com/spf13/cobra"

	// pubsub drivers for --audit-topic and audit tail URLs
	_ "gocloud.dev/pubsub/gcppubsub"
	_ "gocloud.dev/pubsub/mempubsub"
)

func newAuditCmd(o *options, s streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the write outcome events published with --audit-topic",
	}
	cmd.AddCommand(newAuditTailCmd(o, s))
	return cmd
}

func newAuditTailCmd(o *options, s streams) *cobra.Command {
	var (
		count   int
		compact bool
	)
	cmd := &cobra.Command{
		Use:   "tail SUBSCRIPTION_URL",
		Short: "Print write outcome events as they are received",
		Example: `  mung audit tail gcppubsub://projects/myproject/subscriptions/mung-audit
  mung audit tail -n 10 gcppubsub://projects/myproject/subscriptions/mung-audit`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log, err := newLogger(s.stderr, o.verbose)
			if err != nil {
				return err
			}
			ctx = slog.NewContext(ctx, log)

			sub, err := event.NewSubscription[event.WriteEvent](ctx, event.WriteEventName, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = sub.Shutdown(context.WithoutCancel(ctx)) }()

			enc := xjson.NewEncoder(bufio.NewWriter(s.stdout),
				xjson.Compact(compact),
				xjson.Color(useColor(config.ColorAuto, s.stdout)),
			)
			for n := 0; count == 0 || n < count; n++ {
				msg, err := sub.Receive(ctx)
				if err != nil {
					return fmt.Errorf("receiving audit event: %w", err)
				}
				if err := enc.Encode(envelopeValue(msg.Envelope)); err != nil {
					return xerrors.Tag(fmt.Errorf("writing event: %w", err), executor.ErrOutput)
				}
				msg.Ack()
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many events, 0 never exits")
	cmd.Flags().BoolVarP(&compact, "compact", "c", false, "one JSON value per line (strict JSONL)")
	return cmd
}

func envelopeValue(env event.Envelope[event.WriteEvent]) value.Object {
	outcome := env.Event.Outcome
	if outcome == nil {
		outcome = value.Null{}
	}
	return value.NewObject(
		value.Field{Key: "run_id", Value: value.String(env.RunID)},
		value.Field{Key: "name", Value: value.String(env.Name)},
		value.Field{Key: "event", Value: value.NewObject(
			value.Field{Key: "database", Value: value.String(env.Event.Database)},
			value.Field{Key: "collection", Value: value.String(env.Event.Collection)},
			value.Field{Key: "verb", Value: value.String(env.Event.Verb)},
			value.Field{Key: "command", Value: value.String(env.Event.Command)},
			value.Field{Key: "outcome", Value: outcome},
		)},
	)
}
