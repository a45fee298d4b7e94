// Package pricing provides the pricing engine adapters used by line-item synchronizers.
// The HTTP Client talks to the remote pricing API; CachingEngine and MetricsEngine
// decorate any engine with describe caching and Prometheus instrumentation.
package pricing

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"easyquote/core/lineitem"
	"easyquote/core/quote"
	"easyquote/internal/metrics"
)

// Engine is the pricing engine contract the synchronizer consumes
type Engine = lineitem.PricingEngine

// CachingEngine wraps an engine with a describe-response cache.
// Recompute responses depend on user input and are never cached.
type CachingEngine struct {
	inner Engine
	cache *expirable.LRU[string, *quote.PricingResponse]
}

// NewCachingEngine creates a caching wrapper holding up to size products for ttl
func NewCachingEngine(inner Engine, size int, ttl time.Duration) *CachingEngine {
	if size <= 0 {
		size = 256
	}
	return &CachingEngine{
		inner: inner,
		cache: expirable.NewLRU[string, *quote.PricingResponse](size, nil, ttl),
	}
}

// Describe returns the cached definitions of a product, fetching them on a miss
func (e *CachingEngine) Describe(ctx context.Context, req quote.PricingRequest) (*quote.PricingResponse, error) {
	if resp, ok := e.cache.Get(req.ProductID); ok {
		return resp, nil
	}

	resp, err := e.inner.Describe(ctx, req)
	if err != nil {
		return nil, err
	}
	e.cache.Add(req.ProductID, resp)
	return resp, nil
}

// Recompute always reaches the inner engine
func (e *CachingEngine) Recompute(ctx context.Context, req quote.PricingRequest) (*quote.PricingResponse, error) {
	return e.inner.Recompute(ctx, req)
}

// Invalidate drops the cached definitions of a product
func (e *CachingEngine) Invalidate(productID string) {
	e.cache.Remove(productID)
}

// Len returns the number of cached products
func (e *CachingEngine) Len() int {
	return e.cache.Len()
}

// MetricsEngine wraps an engine with request metrics
type MetricsEngine struct {
	inner Engine
}

// NewMetricsEngine creates a metrics wrapper
func NewMetricsEngine(inner Engine) *MetricsEngine {
	return &MetricsEngine{inner: inner}
}

func (e *MetricsEngine) Describe(ctx context.Context, req quote.PricingRequest) (*quote.PricingResponse, error) {
	start := time.Now()
	resp, err := e.inner.Describe(ctx, req)
	metrics.ObservePricing(lineitem.ShapeDescribe.String(), start, err)
	return resp, err
}

func (e *MetricsEngine) Recompute(ctx context.Context, req quote.PricingRequest) (*quote.PricingResponse, error) {
	start := time.Now()
	resp, err := e.inner.Recompute(ctx, req)
	metrics.ObservePricing(lineitem.ShapeRecompute.String(), start, err)
	return resp, err
}

// Wrap applies the standard decorator chain: metrics around the real engine,
// caching outermost so cache hits are not counted as pricing traffic.
func Wrap(inner Engine, cacheSize int, cacheTTL time.Duration) Engine {
	instrumented := NewMetricsEngine(inner)
	if cacheTTL <= 0 {
		return instrumented
	}
	return NewCachingEngine(instrumented, cacheSize, cacheTTL)
}
