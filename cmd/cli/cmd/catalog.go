// Package cmd - catalog commands
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"easyquote/adapters/storage"
	"easyquote/internal/config"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List active products",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "")
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		products, err := a.client.ListActiveProducts(ctx)
		if err != nil {
			return fmt.Errorf("failed to list products: %w", err)
		}
		if outputFormat == "json" {
			return printJSON(products)
		}
		if len(products) == 0 {
			fmt.Println("No active products.")
			return nil
		}
		for _, p := range products {
			fmt.Printf("%-38s %s\n", p.ID, p.DisplayName)
		}
		return nil
	},
}

var additionalsCmd = &cobra.Command{
	Use:   "additionals",
	Short: "List predefined price adjustments",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		catalog, err := storage.OpenAdditionals(ctx, config.Get().Storage)
		if err != nil {
			return err
		}
		defer catalog.Close()

		adds, err := catalog.ListAdditionals(ctx)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(adds)
		}
		if len(adds) == 0 {
			fmt.Println("No predefined adjustments.")
			return nil
		}
		for _, add := range adds {
			fmt.Printf("%-30s %-20s %s\n", truncate(add.Name, 30), add.Type, add.Value.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(productsCmd)
	rootCmd.AddCommand(additionalsCmd)

	productsCmd.Flags().StringVarP(&outputFormat, "format", "f", "cli", "output format (cli, json)")
	additionalsCmd.Flags().StringVarP(&outputFormat, "format", "f", "cli", "output format (cli, json)")
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
