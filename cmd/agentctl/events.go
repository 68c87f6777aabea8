package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"ai-todo-agent-be/internal/config"
	"ai-todo-agent-be/pkg/events"
	pktNats "ai-todo-agent-be/pkg/nats"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var subject, durable string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail task events from NATS JetStream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			sub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
			if err != nil {
				return err
			}
			defer sub.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			cc, err := sub.Subscribe(ctx, subject, durable, func(_ context.Context, event events.Event) error {
				payload, err := json.Marshal(event.Payload())
				if err != nil {
					return err
				}
				okColor.Fprintf(out, "%s ", event.Timestamp().Local().Format("15:04:05"))
				agentColor.Fprintf(out, "%s ", event.EventType())
				fmt.Fprintln(out, string(payload))
				return nil
			})
			if err != nil {
				return err
			}
			defer cc.Stop()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", pktNats.Subject("task.>"), "subject filter")
	cmd.Flags().StringVar(&durable, "durable", "agentctl", "durable consumer name")
	return cmd
}
