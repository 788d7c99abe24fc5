package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joao-fontenele/checkout-ledger/internal/app"
)

var cancelReason string

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Operate on orders",
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <order-id>",
	Short: "Cancel an order and return its stock",
	Long: `Cancel an order that has not been delivered. Every item's quantity is
credited back to stock in the same transaction. Cancelling an order that is
already cancelled changes nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			o, err := a.Orders.Cancel(ctx, actor, args[0], cancelReason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), o)
		})
	},
}

func init() {
	cancelCmd.Flags().StringVar(&cancelReason, "reason", "", "Cancellation reason sent to the customer")

	ordersCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(ordersCmd)
}
