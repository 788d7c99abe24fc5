package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joao-fontenele/checkout-ledger/internal/app"
)

var rejectReason string

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Resolve manual and chat-assisted payments",
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <payment-id>",
	Short: "Mark a pending manual payment as received",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			p, err := a.Payments.Confirm(ctx, actor, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		})
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <payment-id>",
	Short: "Mark a pending manual payment as not received",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			p, err := a.Payments.Reject(ctx, actor, args[0], rejectReason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		})
	},
}

func init() {
	rejectCmd.Flags().StringVar(&rejectReason, "reason", "", "Why the payment is rejected (required)")
	_ = rejectCmd.MarkFlagRequired("reason")

	paymentsCmd.AddCommand(confirmCmd, rejectCmd)
	rootCmd.AddCommand(paymentsCmd)
}
