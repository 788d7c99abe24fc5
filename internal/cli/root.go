// Package cli implements checkoutctl, the operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joao-fontenele/checkout-ledger/internal/app"
	"github.com/joao-fontenele/checkout-ledger/internal/config"
)

var actor string

var rootCmd = &cobra.Command{
	Use:   "checkoutctl",
	Short: "Operate the checkout ledger",
	Long: `checkoutctl runs schema migrations and the operator actions that
have no customer-facing endpoint: confirming or rejecting manual payments,
cancelling orders and bulk stock corrections.

Configuration is read the same way as the checkout service, from .env,
config.yaml and CHECKOUT_* variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Operator recorded on the resulting changes (required for payment decisions)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}

// withApp loads configuration, wires the components and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, newLogger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
