package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/casino-floor/internal/queue"
)

func newLedgerCmd(e *env) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Consume point awards into the raw point ledger",
		Long: `Consume PointsAwarded messages from the ratingslip.points queue and append
them to <dir>/points.log. Reconnects to RabbitMQ until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if dir == "" {
				dir = e.cfg.LedgerDir
			}
			c := &queue.Consumer{URL: e.cfg.AMQP(), LogDir: dir, Log: e.log.WithField("component", "ledger")}
			e.log.WithField("dir", dir).Info("ledger consumer started")
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Ledger directory (default LEDGER_DIR)")
	return cmd
}
