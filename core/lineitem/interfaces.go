// Package lineitem - Pricing configuration synchronizer for one configurable quote row.
//
// A Synchronizer keeps a line item's priced snapshot consistent with the remote
// pricing engine while the user edits its prompts. Edits are debounced, the request
// shape is chosen from the item's lifecycle, stale prompt identifiers are re-keyed
// before recomputing, an optional multi-quantity batch is priced in parallel, and
// the parent aggregator is notified only when the snapshot content changes.
package lineitem

import (
	"context"

	"easyquote/core/quote"
)

// PricingEngine is the remote pricing collaborator
type PricingEngine interface {
	// Describe returns the prompt definitions (and defaults) of a product
	Describe(ctx context.Context, req quote.PricingRequest) (*quote.PricingResponse, error)

	// Recompute prices a product for the given inputs
	Recompute(ctx context.Context, req quote.PricingRequest) (*quote.PricingResponse, error)
}

// CredentialProvider supplies the bearer credential for pricing calls
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// Parent is the quote editor owning the line item. Callbacks are invoked
// synchronously while the item is locked; implementations must not call back
// into the Synchronizer from them.
type Parent interface {
	OnChange(itemID string, snapshot quote.Snapshot)
	OnRemove(itemID string)
	OnFinishEdit(itemID string)
}

// ProductCatalog lists the products a line item may select
type ProductCatalog interface {
	ListActiveProducts(ctx context.Context) ([]quote.Product, error)
}

// AdditionalsCatalog lists the predefined price adjustments
type AdditionalsCatalog interface {
	ListAdditionals(ctx context.Context) ([]quote.Additional, error)
}
