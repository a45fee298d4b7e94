package lineitem

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"easyquote/core/quote"
	"easyquote/internal/metrics"
)

// IsCanonicalID reports whether id has the 8-4-4-4-12 hexadecimal form the pricing engine uses
func IsCanonicalID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// HasStaleIDs reports whether any parameter id is not canonical
func HasStaleIDs(params []quote.Parameter) bool {
	for _, p := range params {
		if !IsCanonicalID(p.ID) {
			return true
		}
	}
	return false
}

// Reconciliation is the outcome of re-keying parameters against canonical definitions
type Reconciliation struct {
	// Params are the parameters to submit, all with canonical ids
	Params []quote.Parameter

	// Mapping maps each re-keyed stale id to its canonical id
	Mapping map[string]string

	// Dropped lists stale ids whose label matched no definition
	Dropped []string

	// Definitions are the canonical prompt definitions used for matching
	Definitions []quote.PromptDefinition
}

func labelKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Reconcile re-keys parameters with non-canonical ids by matching their label
// (trimmed, case-insensitive) against defs. Parameters that already carry a
// canonical id are kept as they are. A stale parameter whose label is unknown, or
// whose canonical id is already taken by another parameter, is dropped.
func Reconcile(params []quote.Parameter, defs []quote.PromptDefinition) Reconciliation {
	byLabel := make(map[string]string, len(defs))
	for _, d := range defs {
		key := labelKey(d.Label)
		if key == "" {
			continue
		}
		if _, seen := byLabel[key]; !seen {
			byLabel[key] = d.ID
		}
	}

	taken := make(map[string]bool, len(params))
	for _, p := range params {
		if IsCanonicalID(p.ID) {
			taken[p.ID] = true
		}
	}

	rec := Reconciliation{
		Params:      make([]quote.Parameter, 0, len(params)),
		Mapping:     make(map[string]string),
		Definitions: defs,
	}
	for _, p := range params {
		if IsCanonicalID(p.ID) {
			rec.Params = append(rec.Params, p)
			continue
		}
		canonical, ok := byLabel[labelKey(p.Label)]
		if !ok || taken[canonical] {
			rec.Dropped = append(rec.Dropped, p.ID)
			continue
		}
		taken[canonical] = true
		rec.Mapping[p.ID] = canonical
		p.ID = canonical
		rec.Params = append(rec.Params, p)
	}
	return rec
}

// Reconciler fetches canonical definitions and re-keys stale parameters
type Reconciler struct {
	engine PricingEngine
	logger *zap.Logger
}

// NewReconciler creates a reconciler over engine
func NewReconciler(engine PricingEngine, logger *zap.Logger) *Reconciler {
	return &Reconciler{engine: engine, logger: logger}
}

// Run describes the product and reconciles params against the answer
func (r *Reconciler) Run(ctx context.Context, productID, token string, params []quote.Parameter) (Reconciliation, error) {
	resp, err := r.engine.Describe(ctx, quote.PricingRequest{ProductID: productID, Token: token})
	if err != nil {
		return Reconciliation{}, err
	}

	rec := Reconcile(params, resp.Prompts)
	for oldID, newID := range rec.Mapping {
		r.logger.Debug("re-keyed stale prompt id",
			zap.String("from", oldID),
			zap.String("to", newID))
	}
	for _, id := range rec.Dropped {
		r.logger.Warn("dropping prompt whose label matches no canonical prompt",
			zap.String("product", productID),
			zap.String("prompt", id))
	}
	metrics.ReconciledPrompts.WithLabelValues("remapped").Add(float64(len(rec.Mapping)))
	metrics.ReconciledPrompts.WithLabelValues("dropped").Add(float64(len(rec.Dropped)))
	return rec, nil
}
