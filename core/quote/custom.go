package quote

import (
	"github.com/shopspring/decimal"
)

// Custom products carry no remote pricing. Quantity and unit price are local numbers
// exposed as two synthetic parameters so the snapshot shape stays uniform.
const (
	CustomProductID   = "custom"
	CustomQuantityID  = "custom_quantity"
	CustomUnitPriceID = "custom_unit_price"
)

// CustomParameters fabricates the synthetic parameters of a custom product
func CustomParameters(qty, unitPrice decimal.Decimal) []Parameter {
	q, _ := qty.Float64()
	u, _ := unitPrice.Float64()
	return []Parameter{
		{ID: CustomQuantityID, Label: "Quantity", Value: q, Order: 0},
		{ID: CustomUnitPriceID, Label: "Unit price", Value: u, Order: 1},
	}
}

// CustomValues reads quantity and unit price back from synthetic parameters
func CustomValues(params []Parameter) (qty, unitPrice decimal.Decimal) {
	qty, unitPrice = decimal.Zero, decimal.Zero
	for _, p := range params {
		f, ok := Number(p.Value)
		if !ok {
			continue
		}
		switch p.ID {
		case CustomQuantityID:
			qty = decimal.NewFromFloat(f)
		case CustomUnitPriceID:
			unitPrice = decimal.NewFromFloat(f)
		}
	}
	return qty, unitPrice
}

// CustomPrice is quantity times unit price
func CustomPrice(qty, unitPrice decimal.Decimal) decimal.Decimal {
	return qty.Mul(unitPrice)
}
