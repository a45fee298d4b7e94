// Package cmd - load command
package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"easyquote/core/quote"
)

var (
	loadQuoteID   string
	loadRecompute bool
)

// loadCmd restores saved line items and re-prices them
var loadCmd = &cobra.Command{
	Use:   "load [snapshot.json]",
	Short: "Load saved line items and re-price them",
	Long: `Mount a saved line item and let it re-price with its saved values.

Either pass a snapshot file, or --quote to restore every item of a quote from the
configured storage backend. Saved values are never replaced by product defaults.

Examples:
  easyquote load item.json
  easyquote load --quote 7d0e...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVar(&loadQuoteID, "quote", "", "restore every item of this quote from storage")
	loadCmd.Flags().BoolVar(&loadRecompute, "recompute", false, "force a recompute even for untouched items")
	loadCmd.Flags().StringVarP(&outputFormat, "format", "f", "cli", "output format (cli, json)")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if len(args) == 0 && loadQuoteID == "" {
		return fmt.Errorf("pass a snapshot file or --quote")
	}

	quoteID := loadQuoteID
	if quoteID == "" {
		quoteID = uuid.NewString()
	}
	a, err := newApp(ctx, quoteID)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	a.loadProducts(ctx)

	var records []quote.Record
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read snapshot: %w", err)
		}
		records = append(records, quote.Record{QuoteID: quoteID, ItemID: uuid.NewString(), Data: data})
	} else {
		records, err = a.store.ListItems(ctx, quoteID)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("Quote %s has no saved line items.\n", quoteID)
			return nil
		}
	}

	for _, rec := range records {
		item := a.newItem(rec.ItemID, a.editor)
		if err := item.Mount(rec.Data); err != nil {
			item.Close()
			return fmt.Errorf("failed to mount line item %s: %w", rec.ItemID, err)
		}
		// a finalized item is reopened for the recompute and closed again afterwards
		reopened := loadRecompute && item.Snapshot().IsFinalized
		if reopened {
			item.Expand()
		}
		if loadRecompute {
			if err := item.Recompute(); err != nil {
				a.logger.Warn("Recompute skipped", zap.String("item", rec.ItemID), zap.Error(err))
			}
		}
		if err := a.settle(ctx, item); err != nil {
			a.logger.Warn("Line item failed to price", zap.String("item", rec.ItemID), zap.Error(err))
		}
		if reopened {
			item.Finalize()
		}
		if err := printItem(item.ID(), item.Snapshot(), item.Status(), a.editor.Totals()); err != nil {
			item.Close()
			return err
		}
		item.Close()
	}
	return nil
}
