package cmd

import (
	"fmt"

	"easyquote/core/editor"
	"easyquote/core/lineitem"
	"easyquote/core/quote"
)

type itemReport struct {
	Snapshot quote.Snapshot `json:"snapshot"`
	Status   statusReport   `json:"status"`
	Totals   editor.Totals  `json:"totals"`
}

type statusReport struct {
	Phase          string   `json:"phase"`
	Lifecycle      string   `json:"lifecycle"`
	Error          string   `json:"error,omitempty"`
	BatchError     string   `json:"batchError,omitempty"`
	DroppedPrompts []string `json:"droppedPrompts,omitempty"`
}

func reportStatus(st lineitem.Status) statusReport {
	r := statusReport{
		Phase:          st.Phase.String(),
		Lifecycle:      st.Lifecycle.String(),
		DroppedPrompts: st.DroppedPrompts,
	}
	if st.Err != nil {
		r.Error = st.Err.Error()
	}
	if st.BatchErr != nil {
		r.BatchError = st.BatchErr.Error()
	}
	return r
}

func printItem(itemID string, snap quote.Snapshot, st lineitem.Status, totals editor.Totals) error {
	if outputFormat == "json" {
		return printJSON(itemReport{Snapshot: snap, Status: reportStatus(st), Totals: totals})
	}

	fmt.Println("┌─────────────────────────────────────────────────────────────────────────┐")
	fmt.Printf("│ %-71s │\n", truncate(orDash(snap.ItemDescription), 71))
	fmt.Printf("│ %-71s │\n", truncate("product "+orDash(snap.ProductID), 71))
	fmt.Println("├─────────────────────────────────────────────────────────────────────────┤")

	for _, p := range snap.Prompts {
		fmt.Printf("│ %-40s %30s │\n", truncate(orDash(p.Label), 40), truncate(quote.Text(p.Value), 30))
	}
	if outputs := quote.DisplayOutputs(snap.Outputs); len(outputs) > 0 {
		fmt.Println("├─────────────────────────────────────────────────────────────────────────┤")
		for _, o := range outputs {
			fmt.Printf("│ %-40s %30s │\n", truncate(o.Name, 40), truncate(o.Value, 30))
		}
	}
	if snap.Multi != nil && len(snap.Multi.Rows) > 0 {
		fmt.Println("├─────────────────────────────────────────────────────────────────────────┤")
		fmt.Printf("│ %-20s %25s %24s │\n", "QUANTITY", "TOTAL", "UNIT")
		for _, row := range snap.Multi.Rows {
			unit := "n/a"
			if row.UnitPrice.Valid {
				unit = row.UnitPrice.Decimal.StringFixed(4)
			}
			fmt.Printf("│ %-20s %25s %24s │\n", quote.Text(row.Qty), row.TotalPrice.StringFixed(2), unit)
		}
	}
	for _, add := range snap.ItemAdditionals {
		fmt.Printf("│   └─ %-46s %20s │\n", truncate(add.Name+" ("+string(add.Type)+")", 46), add.Value.String())
	}

	fmt.Println("├─────────────────────────────────────────────────────────────────────────┤")
	fmt.Printf("│ %-50s %20s │\n", "PRICE", snap.Price.StringFixed(2))
	for _, it := range totals.Items {
		if it.ItemID == itemID {
			fmt.Printf("│ %-50s %20s │\n", "ITEM TOTAL", it.Total.StringFixed(2))
			break
		}
	}
	fmt.Printf("│ %-50s %20s │\n", "QUOTE TOTAL", totals.Grand.StringFixed(2))
	fmt.Println("└─────────────────────────────────────────────────────────────────────────┘")

	if st.Err != nil {
		fmt.Printf("Error: %v\n", st.Err)
	}
	if st.BatchErr != nil {
		fmt.Printf("Multi-quantity pricing failed: %v\n", st.BatchErr)
	}
	if len(st.DroppedPrompts) > 0 {
		fmt.Printf("Warning: %d saved prompt(s) no longer exist on the product and were dropped\n", len(st.DroppedPrompts))
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
