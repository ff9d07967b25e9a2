package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/jharkins/wattson/internal/events"
)

var watchCmd = &cobra.Command{
	Use:   "watch [subject]",
	Short: "Tail sales events from the bus",
	Long:  "Subscribes to the event bus and prints each event as a line of JSON. Defaults to all sales events (sales.>).",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject := "sales.>"
		if len(args) == 1 {
			subject = args[0]
		}

		natsURL := os.Getenv("WATTSON_NATS_URL")
		if natsURL == "" {
			return fmt.Errorf("WATTSON_NATS_URL is not set")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sub, err := events.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Printf("nats: disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Printf("nats: reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		return watchBus(ctx, sub, subject, os.Stdout)
	},
}

// watchBus prints each payload received on subject until ctx is done or the
// subscription closes.
func watchBus(ctx context.Context, sub events.Subscriber, subject string, out io.Writer) error {
	ch, cancel, err := sub.Subscribe(subject)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "%s\n", payload)
		}
	}
}
