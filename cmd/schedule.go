package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcallahan11/resybot-open/internal/store"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage schedules (one task per schedule)",
	}
	cmd.AddCommand(newScheduleCreateCmd())
	cmd.AddCommand(newScheduleListCmd())
	cmd.AddCommand(newScheduleEnableCmd("enable", true))
	cmd.AddCommand(newScheduleEnableCmd("disable", false))
	return cmd
}

func newScheduleCreateCmd() *cobra.Command {
	var (
		taskID      int64
		kind        string
		runAt       string
		timeOfDay   string
		dayOfWeek   int
		durationSec int
		disabled    bool
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a schedule",
		Long: `Create a schedule. Kinds:
  once:   --run-at 2026-09-01T09:59:30 (local time)
  daily:  --time 10:00
  weekly: --time 10:00 --day-of-week 1 (0=Sunday)

Operators typically arm a "once" schedule slightly ahead of the venue's
release time so the run is already polling when the window advances.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			repo, d, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			sc := store.Schedule{
				TaskID:      taskID,
				Kind:        store.ScheduleKind(kind),
				DurationSec: durationSec,
				Enabled:     !disabled,
			}
			switch sc.Kind {
			case store.KindOnce:
				at, err := time.ParseInLocation("2006-01-02T15:04:05", runAt, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --run-at (want YYYY-MM-DDTHH:MM:SS): %w", err)
				}
				sc.RunAt = &at
			case store.KindDaily:
				sc.TimeOfDay = timeOfDay
			case store.KindWeekly:
				sc.TimeOfDay = timeOfDay
				if cmd.Flags().Changed("day-of-week") {
					sc.DayOfWeek = &dayOfWeek
				}
			}
			if err := sc.Validate(); err != nil {
				return err
			}

			id, err := repo.CreateSchedule(ctx, sc)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created schedule id=%d kind=%s task=%d\n", id, kind, taskID)
			return nil
		},
	}

	c.Flags().Int64Var(&taskID, "task-id", 0, "task to fire")
	c.Flags().StringVar(&kind, "kind", "", "once|daily|weekly")
	c.Flags().StringVar(&runAt, "run-at", "", "once: local fire instant")
	c.Flags().StringVar(&timeOfDay, "time", "", "daily/weekly: HH:MM")
	c.Flags().IntVar(&dayOfWeek, "day-of-week", 0, "weekly: 0=Sunday .. 6=Saturday")
	c.Flags().IntVar(&durationSec, "duration-sec", 600, "max run length before the run is cancelled")
	c.Flags().BoolVar(&disabled, "disabled", false, "create disabled")
	_ = c.MarkFlagRequired("task-id")
	_ = c.MarkFlagRequired("kind")
	return c
}

func newScheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			repo, d, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			ss, err := repo.ListSchedules(ctx)
			if err != nil {
				return err
			}
			for _, sc := range ss {
				trigger := sc.TimeOfDay
				if sc.RunAt != nil {
					trigger = sc.RunAt.Format(time.RFC3339)
				}
				if sc.DayOfWeek != nil {
					trigger = fmt.Sprintf("%s dow=%d", trigger, *sc.DayOfWeek)
				}
				fmt.Fprintf(os.Stdout, "id=%d task=%d kind=%s trigger=%s duration=%ds enabled=%t\n",
					sc.ID, sc.TaskID, sc.Kind, trigger, sc.DurationSec, sc.Enabled)
			}
			return nil
		},
	}
}

func newScheduleEnableCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: use + " a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid schedule id %q", args[0])
			}
			ctx := context.Background()
			repo, d, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := repo.SetScheduleEnabled(ctx, id, enabled); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "schedule %d %sd\n", id, use)
			return nil
		},
	}
}
