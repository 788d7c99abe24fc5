package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joao-fontenele/checkout-ledger/internal/app"
	"github.com/joao-fontenele/checkout-ledger/internal/inventory"
)

var bulkFile string

var stockCmd = &cobra.Command{
	Use:   "stock",
	Short: "Correct product stock",
}

var bulkUpdateCmd = &cobra.Command{
	Use:   "bulk-update",
	Short: "Set absolute stock levels for several products at once",
	Long: `Read a JSON array of {"product_id", "new_stock", "reason"} objects
from --file (or stdin with "-") and apply them all in one transaction. If any
product is unknown nothing is changed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		adjustments, err := readAdjustments(cmd.InOrStdin(), bulkFile)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			entries, err := a.Inventory.BulkUpdate(ctx, actor, adjustments)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		})
	},
}

func readAdjustments(stdin io.Reader, path string) ([]inventory.Adjustment, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var adjustments []inventory.Adjustment
	if err := json.NewDecoder(r).Decode(&adjustments); err != nil {
		return nil, fmt.Errorf("failed to decode adjustments: %w", err)
	}
	if len(adjustments) == 0 {
		return nil, fmt.Errorf("no adjustments in %s", path)
	}
	return adjustments, nil
}

func init() {
	bulkUpdateCmd.Flags().StringVarP(&bulkFile, "file", "f", "-", "JSON file with the adjustments")

	stockCmd.AddCommand(bulkUpdateCmd)
	rootCmd.AddCommand(stockCmd)
}
