package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dcallahan11/resybot-open/internal/auth"
	"github.com/dcallahan11/resybot-open/internal/config"
	"github.com/dcallahan11/resybot-open/internal/db"
	"github.com/dcallahan11/resybot-open/internal/migrate"
	"github.com/dcallahan11/resybot-open/internal/notify"
	"github.com/dcallahan11/resybot-open/internal/resy"
	"github.com/dcallahan11/resybot-open/internal/runner"
	"github.com/dcallahan11/resybot-open/internal/scheduler"
	"github.com/dcallahan11/resybot-open/internal/store"
	"github.com/dcallahan11/resybot-open/internal/web"
)

func newServeCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler + web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}
			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			loc, err := cfg.Location()
			if err != nil {
				return fmt.Errorf("SCHED_TIMEZONE: %w", err)
			}

			repo := store.NewRepo(d)

			var notifier runner.Notifier = notify.Nop{}
			if cfg.WebhookURL != "" {
				notifier = notify.NewWebhook(cfg.WebhookURL, log)
			}

			run := runner.New(resy.New(), notifier, log)
			sched := scheduler.New(repo, scheduler.Launch(run), log, loc)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			authStore := auth.NewStore(d, cfg.CookieHashKey, cfg.CookieBlockKey)
			ws := &web.Server{Auth: authStore, Repo: repo, Sched: sched, Log: log, BaseURL: cfg.BaseURL}
			return web.Start(ctx, cfg.ListenAddr, ws.Routes(), log)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	return cmd
}
