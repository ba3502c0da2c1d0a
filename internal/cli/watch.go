package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/casino-floor/internal/clock"
	"github.com/iliyamo/casino-floor/internal/config"
	"github.com/iliyamo/casino-floor/internal/floor"
	"github.com/iliyamo/casino-floor/internal/realtime"
	"github.com/iliyamo/casino-floor/internal/repository"
)

func newWatchCmd(e *env) *cobra.Command {
	var (
		casinoID string
		interval time.Duration
		poll     time.Duration
		once     bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the seat maps of a casino floor",
		Long: `Keep a local floor view of one casino in sync and print it whenever it
changes and every --interval so live points keep counting.

Change events arrive over Redis when it is reachable. Without Redis the view
is refetched every --poll.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if casinoID == "" {
				return fmt.Errorf("--casino is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, d, _, err := e.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			store := repository.NewStore(db, d)
			if _, err := store.Casinos.GetByID(ctx, casinoID); err != nil {
				return err
			}

			var sub realtime.Subscriber
			redisCfg, err := config.LoadRedisConfig()
			if err != nil {
				return err
			}
			if rdb := config.NewRedisClient(redisCfg); rdb != nil {
				defer rdb.Close()
				sub = realtime.NewRedisBroker(rdb, realtime.DefaultBuffer, e.log)
				poll = 0
			} else {
				e.log.Warn("redis unavailable, polling the store")
				sub = realtime.NewHub(realtime.DefaultBuffer, e.log)
			}

			clk := clock.New()
			s := floor.New(casinoID, floor.NewStoreSource(store, e.cfg.StoreTimeout), sub, clk,
				floor.Options{RetryInterval: e.cfg.FloorRetryInterval, PollInterval: poll}, e.log)
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- s.Run(runCtx) }()

			select {
			case <-s.Ready():
			case err := <-done:
				return err
			}

			show := func(v floor.View) error {
				live := v.Live(clk.Now())
				if asJSON {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(live)
				}
				return renderFloor(cmd.OutOrStdout(), live)
			}
			if once {
				return show(s.View())
			}
			return watchLoop(runCtx, s, interval, show)
		},
	}
	cmd.Flags().StringVar(&casinoID, "casino", "", "Casino id")
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Second, "Reprint cadence for live points")
	cmd.Flags().DurationVar(&poll, "poll", 5*time.Second, "Refetch cadence when Redis is unavailable")
	cmd.Flags().BoolVar(&once, "once", false, "Print the floor once and exit")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print views as JSON lines")
	return cmd
}

func watchLoop(ctx context.Context, s *floor.Synchronizer, interval time.Duration, show func(floor.View) error) error {
	views := s.Watch(ctx)
	tick := time.NewTicker(interval)
	defer tick.Stop()
	current := s.View()
	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-views:
			if !ok {
				return nil
			}
			current = v
		case <-tick.C:
		}
		if err := show(current); err != nil {
			return err
		}
	}
}

// renderFloor prints one line per table followed by its occupied seats.
func renderFloor(w io.Writer, v floor.LiveView) error {
	status := "live"
	if v.Stale {
		status = "STALE"
	}
	fmt.Fprintf(w, "casino %s  %s  v%d  at %s\n", v.CasinoID, status, v.Version, v.At.Format(time.RFC3339))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tNAME\tSEATS\tOPEN\tAVG BET\tOCCUPANTS")
	for _, t := range v.Tables {
		var occ []string
		for _, seat := range t.Seats {
			if seat.Slip != nil {
				occ = append(occ, fmt.Sprintf("%d:%s(%dpts)", seat.Number, shortID(seat.Slip.PlayerID), seat.LivePoints))
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			t.Table.TableNumber, t.Table.Name, len(t.Seats), t.OpenSessions, t.AverageBet.StringFixed(2), strings.Join(occ, " "))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
