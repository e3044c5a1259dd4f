package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcallahan11/resybot-open/internal/store"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage sniping tasks",
	}
	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskListCmd())
	return cmd
}

func newTaskCreateCmd() *cobra.Command {
	var (
		name            string
		accountID       int64
		backupAccountID int64
		restaurantID    string
		partySize       int
		startDate       string
		endDate         string
		desiredTime     string
		flexMinutes     int
		startHour       int
		endHour         int
		delayMS         int
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			repo, d, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			sd, err := time.Parse("2006-01-02", startDate)
			if err != nil {
				return fmt.Errorf("invalid --start-date (want YYYY-MM-DD)")
			}
			ed, err := time.Parse("2006-01-02", endDate)
			if err != nil {
				return fmt.Errorf("invalid --end-date (want YYYY-MM-DD)")
			}

			t := store.Task{
				Name:         name,
				AccountID:    accountID,
				RestaurantID: restaurantID,
				PartySize:    partySize,
				StartDate:    sd,
				EndDate:      ed,
				DesiredTime:  desiredTime,
				FlexMinutes:  flexMinutes,
				StartHour:    startHour,
				EndHour:      endHour,
				DelayMS:      delayMS,
			}
			if backupAccountID > 0 {
				t.BackupAccountID = &backupAccountID
			}
			if err := t.Validate(); err != nil {
				return err
			}

			id, err := repo.CreateTask(ctx, t)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created task id=%d name=%q\n", id, name)
			return nil
		},
	}

	c.Flags().StringVar(&name, "name", "", "task name")
	c.Flags().Int64Var(&accountID, "account-id", 0, "primary account id")
	c.Flags().Int64Var(&backupAccountID, "backup-account-id", 0, "optional fallback account id")
	c.Flags().StringVar(&restaurantID, "restaurant-id", "", "Resy venue id")
	c.Flags().IntVar(&partySize, "party-size", 2, "party size")
	c.Flags().StringVar(&startDate, "start-date", "", "first dining date to poll (YYYY-MM-DD)")
	c.Flags().StringVar(&endDate, "end-date", "", "last dining date to poll (YYYY-MM-DD)")
	c.Flags().StringVar(&desiredTime, "desired-time", "", "preferred time HH:MM; leave empty for hour-range matching")
	c.Flags().IntVar(&flexMinutes, "flex-minutes", 30, "acceptable distance from --desired-time")
	c.Flags().IntVar(&startHour, "start-hour", 18, "hour-range mode: earliest acceptable hour")
	c.Flags().IntVar(&endHour, "end-hour", 21, "hour-range mode: latest acceptable hour")
	c.Flags().IntVar(&delayMS, "delay-ms", 1000, "poll delay between iterations")
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("account-id")
	_ = c.MarkFlagRequired("restaurant-id")
	_ = c.MarkFlagRequired("start-date")
	_ = c.MarkFlagRequired("end-date")
	return c
}

func newTaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			repo, d, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			ts, err := repo.ListTasks(ctx)
			if err != nil {
				return err
			}
			for _, t := range ts {
				match := fmt.Sprintf("hours %d..%d", t.StartHour, t.EndHour)
				if t.DesiredTime != "" {
					match = fmt.Sprintf("%s ±%dm", t.DesiredTime, t.FlexMinutes)
				}
				fmt.Fprintf(os.Stdout, "id=%d name=%q restaurant=%s party=%d dates=%s..%s match=%s delay=%dms\n",
					t.ID, t.Name, t.RestaurantID, t.PartySize,
					t.StartDate.Format("2006-01-02"), t.EndDate.Format("2006-01-02"), match, t.DelayMS)
			}
			return nil
		},
	}
}
