package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcallahan11/resybot-open/internal/config"
	"github.com/dcallahan11/resybot-open/internal/notify"
	"github.com/dcallahan11/resybot-open/internal/resy"
	"github.com/dcallahan11/resybot-open/internal/runner"
	"github.com/dcallahan11/resybot-open/internal/store"
)

func newRunCmd() *cobra.Command {
	var (
		taskIDs     []int64
		concurrency int
		durationSec int
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Run tasks immediately with bounded concurrency (bypasses schedules)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx, timeout := context.WithTimeout(ctx, time.Duration(durationSec)*time.Second)
			defer timeout()

			repo, d, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			tasks, err := repo.ListTasks(ctx)
			if err != nil {
				return err
			}
			if len(taskIDs) > 0 {
				want := map[int64]bool{}
				for _, id := range taskIDs {
					want[id] = true
				}
				var filtered []store.Task
				for _, t := range tasks {
					if want[t.ID] {
						filtered = append(filtered, t)
					}
				}
				tasks = filtered
			}
			if len(tasks) == 0 {
				return fmt.Errorf("no tasks to run")
			}

			accountList, err := repo.ListAccounts(ctx)
			if err != nil {
				return err
			}
			accounts := make(map[int64]store.Account, len(accountList))
			for _, a := range accountList {
				accounts[a.ID] = a
			}

			var proxies []string
			if ps, err := repo.ListProxies(ctx); err == nil {
				for _, p := range ps {
					proxies = append(proxies, p.URL)
				}
			}

			var notifier runner.Notifier = notify.Nop{}
			if cfg.WebhookURL != "" {
				notifier = notify.NewWebhook(cfg.WebhookURL, log)
			}

			run := runner.New(resy.New(), notifier, log)
			results := run.RunAll(ctx, tasks, accounts, proxies, concurrency)

			for id, res := range results {
				switch res.Status {
				case runner.StatusBooked:
					fmt.Fprintf(os.Stdout, "task=%d booked reservation=%s day=%s slot=%s account=%s\n",
						id, res.Booking.ReservationID, res.Booking.Day, res.Booking.SlotTime, res.Booking.Account)
				case runner.StatusFailed:
					fmt.Fprintf(os.Stdout, "task=%d failed: %s\n", id, res.Reason)
				case runner.StatusAborted:
					fmt.Fprintf(os.Stdout, "task=%d aborted\n", id)
				}
			}
			return nil
		},
	}

	c.Flags().Int64SliceVar(&taskIDs, "task-ids", nil, "task ids to run (default: all)")
	c.Flags().IntVar(&concurrency, "concurrency", 2, "max tasks running at once")
	c.Flags().IntVar(&durationSec, "duration-sec", 600, "overall deadline for the batch")
	return c
}
