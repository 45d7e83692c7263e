package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/occurrences/internal/events"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Print occurrence events from NATS as they arrive",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if url, _ := cmd.Flags().GetString("nats-url"); url != "" {
			cfg.NATSURL = url
		}
		if cfg.NATSURL == "" {
			return fmt.Errorf("no NATS URL: set OCC_NATS_URL or --nats-url")
		}
		logger, err := newLogger(os.Stderr, cfg.LogLevel)
		if err != nil {
			return err
		}

		sub, err := events.NewNATSSubscriber(cfg.NATSURL, logger,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("disconnected from NATS", "err", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("reconnected to NATS", "url", nc.ConnectedUrl())
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		topic, _ := cmd.Flags().GetString("topic")
		ch, err := sub.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for m := range ch {
			fmt.Fprintln(out, formatEvent(m))
		}
		return nil
	},
}

// formatEvent renders an event as "topic id payload".
func formatEvent(m events.Message) string {
	data := m.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return fmt.Sprintf("%s %s %s", m.Topic, m.ID, data)
}

func init() {
	watchCmd.Flags().String("nats-url", "", "NATS server URL (overrides OCC_NATS_URL)")
	watchCmd.Flags().String("topic", events.TopicAll, "subject to subscribe to")
}
