// Package cmd - price command
package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"easyquote/core/quote"
)

var (
	priceQuoteID     string
	priceItemID      string
	priceSets        []string
	priceQtyPrompt   string
	priceQuantities  []float64
	priceCustomQty   string
	priceCustomUnit  string
	priceDescription string
	priceAdditionals []string
	outputFormat     string
)

// priceCmd represents the price command
var priceCmd = &cobra.Command{
	Use:   "price <productId>",
	Short: "Price a configurable product line item",
	Long: `Select a product, apply prompt values and print the priced line item.

Prompt values are given as id=value. Multi-quantity pricing takes the quantity
prompt id and the extra quantities to price next to its live value.

Examples:
  easyquote price 5f1c...
  easyquote price 5f1c... --set 11111111-2222-3333-4444-555555555555=250
  easyquote price 5f1c... --qty-prompt 11111111-... --qty 500,1000
  easyquote price custom --custom-qty 3 --custom-unit 12.50
  easyquote price 5f1c... --additional "Rush fee:net_amount:15"`,
	Args: cobra.ExactArgs(1),
	RunE: runPrice,
}

func init() {
	rootCmd.AddCommand(priceCmd)

	priceCmd.Flags().StringVar(&priceQuoteID, "quote", "", "quote id the item is saved under (default: new id)")
	priceCmd.Flags().StringVar(&priceItemID, "item", "", "line item id (default: new id)")
	priceCmd.Flags().StringArrayVarP(&priceSets, "set", "s", nil, "prompt value as id=value (repeatable)")
	priceCmd.Flags().StringVar(&priceQtyPrompt, "qty-prompt", "", "numeric prompt id used for multi-quantity pricing")
	priceCmd.Flags().Float64SliceVar(&priceQuantities, "qty", nil, "extra quantities to price (multi-quantity mode)")
	priceCmd.Flags().StringVar(&priceCustomQty, "custom-qty", "1", "quantity of a custom product")
	priceCmd.Flags().StringVar(&priceCustomUnit, "custom-unit", "0", "unit price of a custom product")
	priceCmd.Flags().StringVar(&priceDescription, "description", "", "item description (default: product name)")
	priceCmd.Flags().StringArrayVar(&priceAdditionals, "additional", nil, "adjustment as name:type:value, type net_amount or quantity_multiplier")
	priceCmd.Flags().StringVarP(&outputFormat, "format", "f", "cli", "output format (cli, json)")
}

func runPrice(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	productID := strings.TrimSpace(args[0])

	if priceQuoteID == "" {
		priceQuoteID = uuid.NewString()
	}
	if priceItemID == "" {
		priceItemID = uuid.NewString()
	}
	adds, err := parseAdditionals(priceAdditionals)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, priceQuoteID)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if productID != quote.CustomProductID {
		a.loadProducts(ctx)
	}
	item := a.newItem(priceItemID, a.editor)
	defer item.Close()

	if err := item.SelectProduct(productID); err != nil {
		return err
	}

	if productID == quote.CustomProductID {
		qty, err := decimal.NewFromString(priceCustomQty)
		if err != nil {
			return fmt.Errorf("invalid --custom-qty: %w", err)
		}
		unit, err := decimal.NewFromString(priceCustomUnit)
		if err != nil {
			return fmt.Errorf("invalid --custom-unit: %w", err)
		}
		if err := item.SetCustom(qty, unit); err != nil {
			return err
		}
	} else {
		if err := a.settle(ctx, item); err != nil {
			return fmt.Errorf("failed to describe product %s: %w", productID, err)
		}
		for _, kv := range priceSets {
			id, value, ok := strings.Cut(kv, "=")
			if !ok || strings.TrimSpace(id) == "" {
				return fmt.Errorf("invalid --set %q: expected id=value", kv)
			}
			if err := item.SetField(strings.TrimSpace(id), value, ""); err != nil {
				return err
			}
		}
		if priceQtyPrompt != "" {
			// slot 0 always mirrors the live prompt value
			qtys := append([]float64{0}, priceQuantities...)
			if err := item.SetMultiQuantity(true, priceQtyPrompt, qtys); err != nil {
				return err
			}
		}
		if err := a.settle(ctx, item); err != nil {
			return fmt.Errorf("failed to price product %s: %w", productID, err)
		}
	}

	if priceDescription != "" {
		if err := item.SetDescription(priceDescription); err != nil {
			return err
		}
	}
	for _, add := range adds {
		if _, err := item.AddAdditional(add); err != nil {
			return err
		}
	}
	item.Finalize()

	return printItem(item.ID(), item.Snapshot(), item.Status(), a.editor.Totals())
}

func parseAdditionals(specs []string) ([]quote.Additional, error) {
	adds := make([]quote.Additional, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 3 {
			return nil, fmt.Errorf("invalid --additional %q: expected name:type:value", spec)
		}
		n := len(parts)
		name := strings.Join(parts[:n-2], ":")
		t := quote.AdditionalType(strings.TrimSpace(parts[n-2]))
		if !t.Valid() {
			return nil, fmt.Errorf("invalid --additional %q: unknown type %s", spec, t)
		}
		value, err := decimal.NewFromString(strings.TrimSpace(parts[n-1]))
		if err != nil {
			return nil, fmt.Errorf("invalid --additional %q: %w", spec, err)
		}
		adds = append(adds, quote.NewAdditional(strings.TrimSpace(name), t, value))
	}
	return adds, nil
}
