package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dcallahan11/resybot-open/internal/store"
)

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage Resy accounts",
	}
	cmd.AddCommand(newAccountAddCmd())
	cmd.AddCommand(newAccountListCmd())
	return cmd
}

func newAccountAddCmd() *cobra.Command {
	var (
		name      string
		apiKey    string
		authToken string
		paymentID int64
	)

	c := &cobra.Command{
		Use:   "add",
		Short: "Add an account (API key + auth token from a browser session)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			repo, d, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			id, err := repo.CreateAccount(ctx, store.Account{
				Name:            name,
				APIKey:          apiKey,
				AuthToken:       authToken,
				PaymentMethodID: paymentID,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created account id=%d name=%q\n", id, name)
			return nil
		},
	}

	c.Flags().StringVar(&name, "name", "", "account name")
	c.Flags().StringVar(&apiKey, "api-key", "", "Resy API key")
	c.Flags().StringVar(&authToken, "auth-token", "", "Resy auth token")
	c.Flags().Int64Var(&paymentID, "payment-method-id", 0, "payment method id used at booking")
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("api-key")
	_ = c.MarkFlagRequired("auth-token")
	return c
}

func newAccountListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts (tokens elided)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			repo, d, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			as, err := repo.ListAccounts(ctx)
			if err != nil {
				return err
			}
			for _, a := range as {
				fmt.Fprintf(os.Stdout, "id=%d name=%q payment_method_id=%d\n", a.ID, a.Name, a.PaymentMethodID)
			}
			return nil
		},
	}
}
