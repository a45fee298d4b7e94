package lineitem

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"easyquote/core/quote"
	qerrors "easyquote/internal/errors"
	"easyquote/internal/metrics"
)

// DefaultMaxQuantities caps the multi-quantity list
const DefaultMaxQuantities = 10

// BatchEngine prices one configuration at several quantities in parallel
type BatchEngine struct {
	engine PricingEngine
	limit  int
	logger *zap.Logger
}

// NewBatchEngine creates a batch engine; limit <= 0 selects DefaultMaxQuantities
func NewBatchEngine(engine PricingEngine, limit int, logger *zap.Logger) *BatchEngine {
	if limit <= 0 {
		limit = DefaultMaxQuantities
	}
	return &BatchEngine{engine: engine, limit: limit, logger: logger}
}

// Max returns the maximum number of quantities priced per cycle
func (b *BatchEngine) Max() int {
	return b.limit
}

// Run issues one recompute per quantity, substituting only qtyPrompt. Any failure
// fails the whole batch and no rows are returned.
func (b *BatchEngine) Run(ctx context.Context, productID, token string, params []quote.Parameter, qtyPrompt string, quantities []float64) ([]quote.BatchRow, error) {
	if len(quantities) > b.limit {
		quantities = quantities[:b.limit]
	}

	rows := make([]quote.BatchRow, len(quantities))
	g, gctx := errgroup.WithContext(ctx)
	for i, qty := range quantities {
		g.Go(func() error {
			req := quote.PricingRequest{
				ProductID: productID,
				Token:     token,
				Inputs:    BuildInputs(withQuantity(params, qtyPrompt, qty)),
			}
			resp, err := b.engine.Recompute(gctx, req)
			if err != nil {
				return qerrors.Wrapf(qerrors.TypeBatch, err, "pricing quantity %v", qty)
			}
			rows[i] = NewBatchRow(qty, resp.Outputs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		metrics.BatchCycles.WithLabelValues("error").Inc()
		b.logger.Warn("multi-quantity batch failed", zap.Error(err))
		return nil, err
	}
	metrics.BatchCycles.WithLabelValues("ok").Inc()
	return rows, nil
}

// NewBatchRow builds a row from the outputs priced for qty. The unit price is null
// when qty is zero.
func NewBatchRow(qty float64, outputs []quote.Output) quote.BatchRow {
	total, _ := quote.PriceOf(outputs)
	row := quote.BatchRow{
		Qty:        qty,
		Outputs:    append([]quote.Output{}, outputs...),
		TotalPrice: total,
	}
	if qty != 0 {
		row.UnitPrice = decimal.NewNullDecimal(total.Div(decimal.NewFromFloat(qty)))
	}
	return row
}

func withQuantity(params []quote.Parameter, qtyPrompt string, qty float64) []quote.Parameter {
	out := make([]quote.Parameter, len(params), len(params)+1)
	copy(out, params)
	for i := range out {
		if out[i].ID == qtyPrompt {
			out[i].Value = qty
			return out
		}
	}
	return append(out, quote.Parameter{ID: qtyPrompt, Value: qty, Order: quote.DefaultOrder})
}
