package quote

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdditionalType selects how a manual adjustment changes the item price
type AdditionalType string

const (
	// AdditionalNetAmount adds its value to the item price
	AdditionalNetAmount AdditionalType = "net_amount"

	// AdditionalQuantityMultiplier multiplies the item price by its value
	AdditionalQuantityMultiplier AdditionalType = "quantity_multiplier"
)

// Valid reports whether t is a known adjustment type
func (t AdditionalType) Valid() bool {
	return t == AdditionalNetAmount || t == AdditionalQuantityMultiplier
}

// Additional is a manual price adjustment attached to a line item
type Additional struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Type  AdditionalType  `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// NewAdditional creates an adjustment with a fresh identifier
func NewAdditional(name string, t AdditionalType, value decimal.Decimal) Additional {
	return Additional{
		ID:    uuid.NewString(),
		Name:  name,
		Type:  t,
		Value: value,
	}
}

// ApplyAdditionals returns price adjusted by adds. Multipliers apply to the base
// price first, net amounts are added afterwards, so the result does not depend on
// the order in which the user attached them.
func ApplyAdditionals(price decimal.Decimal, adds []Additional) decimal.Decimal {
	total := price
	for _, a := range adds {
		if a.Type == AdditionalQuantityMultiplier {
			total = total.Mul(a.Value)
		}
	}
	for _, a := range adds {
		if a.Type == AdditionalNetAmount {
			total = total.Add(a.Value)
		}
	}
	return total
}
