// Package quote - Line item data model shared by the synchronizer, the quote editor and the adapters.
package quote

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultOrder is the display order assigned to prompts whose position is unknown
const DefaultOrder = 999

// PriceOutputType marks the output carrying the primary monetary result
const PriceOutputType = "price"

// Parameter is one user-editable input ("prompt") of a configurable product
type Parameter struct {
	// ID must match the pricing engine's canonical identifier to be honored on recompute
	ID string `json:"id"`

	// Label is the human-readable name; used to re-key parameters whose ID is stale
	Label string `json:"label"`

	// Value is a scalar: string, float64 or json.Number
	Value any `json:"value"`

	// Order is used for display ordering only
	Order int `json:"order"`
}

// Output is one computed result returned by the pricing engine
type Output struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// PromptDefinition is the pricing engine's description of one prompt
type PromptDefinition struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Type         string `json:"type"`
	CurrentValue any    `json:"currentValue"`
	Sequence     int    `json:"sequence"`
}

// Input is one normalized value submitted with a recompute request
type Input struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// PricingRequest is the request sent to the pricing engine. A request without
// inputs is a describe; a request with inputs is a recompute.
type PricingRequest struct {
	ProductID string
	Token     string
	Inputs    []Input
}

// PricingResponse is the pricing engine's answer to either request shape
type PricingResponse struct {
	Prompts []PromptDefinition `json:"prompts"`
	Outputs []Output           `json:"outputValues"`
}

// Product is a catalog entry
type Product struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	IsActive    bool   `json:"isActive"`
}

// BatchRow is the priced result for one quantity in multi-quantity mode
type BatchRow struct {
	Qty        float64             `json:"qty"`
	Outputs    []Output            `json:"outputs"`
	TotalPrice decimal.Decimal     `json:"totalPrice"`
	UnitPrice  decimal.NullDecimal `json:"unitPrice"`
}

// MultiQuantity is the multi-quantity configuration and its last computed rows
type MultiQuantity struct {
	// QtyPrompt is the ID of the numeric prompt substituted per row
	QtyPrompt string `json:"qtyPrompt"`

	// QtyInputs are the requested quantities; slot 0 mirrors the live prompt value
	QtyInputs []float64 `json:"qtyInputs"`

	Rows []BatchRow `json:"rows"`
}

// Snapshot is the unit exchanged with the parent aggregator
type Snapshot struct {
	ProductID       string          `json:"productId"`
	Prompts         []Parameter     `json:"prompts"`
	Outputs         []Output        `json:"outputs"`
	Price           decimal.Decimal `json:"price"`
	Multi           *MultiQuantity  `json:"multi,omitempty"`
	ItemDescription string          `json:"itemDescription"`
	ItemAdditionals []Additional    `json:"itemAdditionals"`
	IsFinalized     bool            `json:"isFinalized"`
}

// IsCustom reports whether the snapshot belongs to a custom product
func (s *Snapshot) IsCustom() bool {
	return s.ProductID == CustomProductID
}

// Record is one persisted line item. Data holds the serialized snapshot exactly
// as it was written, so older shapes are decoded again on mount.
type Record struct {
	QuoteID   string          `json:"quote_id"`
	ItemID    string          `json:"item_id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}
