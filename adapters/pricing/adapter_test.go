package pricing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"easyquote/core/quote"
	qerrors "easyquote/internal/errors"
)

const productID = "prod-1"

type staticToken string

func (t staticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

func newTestClient(t *testing.T, handler http.Handler, onUnauthorized func(error)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{
		BaseURL:        srv.URL,
		Timeout:        5 * time.Second,
		Credentials:    staticToken("tok"),
		OnUnauthorized: onUnauthorized,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// TestDescribeIssuesBodylessGet checks the describe request shape and response mapping
func TestDescribeIssuesBodylessGet(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/v1/pricing/"+productID {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected authorization %q", got)
		}
		if body, _ := io.ReadAll(r.Body); len(body) != 0 {
			t.Errorf("describe must not carry a body, got %s", body)
		}
		w.Write([]byte(`{
			"prompts": [{"id":"a","label":"Width","type":"number","currentValue":10,"sequence":1},{"id":"b","label":"Finish"}],
			"outputValues": [{"name":"Total","type":"price","value":12.5}]
		}`))
	}), nil)

	resp, err := c.Describe(context.Background(), quote.PricingRequest{ProductID: productID, Token: "tok"})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if len(resp.Prompts) != 2 || resp.Prompts[0].CurrentValue != json.Number("10") {
		t.Errorf("unexpected prompts %+v", resp.Prompts)
	}
	if resp.Prompts[1].Sequence != quote.DefaultOrder {
		t.Errorf("missing sequence must map to the sentinel order, got %d", resp.Prompts[1].Sequence)
	}
	price, ok := quote.PriceOf(resp.Outputs)
	if !ok || !price.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("expected price 12.5, got %s", price)
	}
}

// TestRecomputeSendsInputs checks the recompute request body
func TestRecomputeSendsInputs(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		var inputs []quote.Input
		if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(inputs) != 2 || inputs[0].ID != "a" || inputs[0].Value != 10.0 || inputs[1].Value != "FF0000" {
			t.Errorf("unexpected inputs %+v", inputs)
		}
		w.Write([]byte(`{"prompts":[],"outputValues":[{"name":"Total","type":"price","value":"99,90"}]}`))
	}), nil)

	resp, err := c.Recompute(context.Background(), quote.PricingRequest{
		ProductID: productID,
		Token:     "tok",
		Inputs:    []quote.Input{{ID: "a", Value: 10.0}, {ID: "b", Value: "FF0000"}},
	})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if price, _ := quote.PriceOf(resp.Outputs); !price.Equal(decimal.RequireFromString("99.9")) {
		t.Errorf("expected price 99.9, got %s", price)
	}
}

// TestUnauthorizedNotifiesAndFails checks the session invalidation hook
func TestUnauthorizedNotifiesAndFails(t *testing.T) {
	var notified []error
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), func(err error) { notified = append(notified, err) })

	_, err := c.Describe(context.Background(), quote.PricingRequest{ProductID: productID, Token: "tok"})
	if !qerrors.IsType(err, qerrors.TypeUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if len(notified) != 1 {
		t.Errorf("expected one unauthorized notification, got %d", len(notified))
	}
}

// TestErrorStatusBecomesPricingError checks remote failures are typed
func TestErrorStatusBecomesPricingError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"product misconfigured"}`))
	}), nil)

	_, err := c.Recompute(context.Background(), quote.PricingRequest{ProductID: productID, Token: "tok"})
	if !qerrors.IsType(err, qerrors.TypePricing) {
		t.Fatalf("expected pricing error, got %v", err)
	}
	var qe *qerrors.Error
	if e, ok := err.(*qerrors.Error); ok {
		qe = e
	}
	if qe == nil || qe.Context["status"] != http.StatusUnprocessableEntity {
		t.Errorf("status not recorded in error context: %v", err)
	}
}

// TestMissingTokenFailsFast checks no request leaves without a credential
func TestMissingTokenFailsFast(t *testing.T) {
	called := false
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}), nil)

	_, err := c.Describe(context.Background(), quote.PricingRequest{ProductID: productID})
	if !qerrors.IsType(err, qerrors.TypePrecondition) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	if called {
		t.Errorf("request issued without a token")
	}
}

// TestListActiveProducts checks inactive products are filtered out
func TestListActiveProducts(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/products" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"id":"p1","displayName":"Flyers","isActive":true},
			{"id":"p2","displayName":"Old","isActive":false}
		]`))
	}), nil)

	products, err := c.ListActiveProducts(context.Background())
	if err != nil {
		t.Fatalf("ListActiveProducts: %v", err)
	}
	if len(products) != 1 || products[0].DisplayName != "Flyers" {
		t.Errorf("unexpected products %+v", products)
	}
}

// TestNewClientRejectsBadURL checks configuration validation
func TestNewClientRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "not a url", "/relative"} {
		if _, err := NewClient(ClientConfig{BaseURL: u}); !qerrors.IsType(err, qerrors.TypeConfig) {
			t.Errorf("%q: expected config error, got %v", u, err)
		}
	}
}

// countingEngine counts calls reaching it
type countingEngine struct {
	mu        sync.Mutex
	describes int
	recompute int
}

func (e *countingEngine) Describe(ctx context.Context, req quote.PricingRequest) (*quote.PricingResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.describes++
	return &quote.PricingResponse{Prompts: []quote.PromptDefinition{{ID: "a", Label: req.ProductID}}}, nil
}

func (e *countingEngine) Recompute(ctx context.Context, req quote.PricingRequest) (*quote.PricingResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recompute++
	return &quote.PricingResponse{}, nil
}

// TestCachingEngineCachesDescribeOnly checks the decorator contract
func TestCachingEngineCachesDescribeOnly(t *testing.T) {
	inner := &countingEngine{}
	e := NewCachingEngine(inner, 8, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.Describe(ctx, quote.PricingRequest{ProductID: "p1", Token: "tok"}); err != nil {
			t.Fatalf("Describe: %v", err)
		}
		if _, err := e.Recompute(ctx, quote.PricingRequest{ProductID: "p1", Token: "tok"}); err != nil {
			t.Fatalf("Recompute: %v", err)
		}
	}
	if _, err := e.Describe(ctx, quote.PricingRequest{ProductID: "p2", Token: "tok"}); err != nil {
		t.Fatalf("Describe: %v", err)
	}

	if inner.describes != 2 {
		t.Errorf("expected 2 describes to reach the engine, got %d", inner.describes)
	}
	if inner.recompute != 3 {
		t.Errorf("expected every recompute to reach the engine, got %d", inner.recompute)
	}
	if e.Len() != 2 {
		t.Errorf("expected 2 cached products, got %d", e.Len())
	}

	e.Invalidate("p1")
	if _, err := e.Describe(ctx, quote.PricingRequest{ProductID: "p1", Token: "tok"}); err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if inner.describes != 3 {
		t.Errorf("invalidated product must be fetched again, got %d describes", inner.describes)
	}
}

// TestWrapWithoutTTLSkipsCache checks the decorator chain selection
func TestWrapWithoutTTLSkipsCache(t *testing.T) {
	if _, ok := Wrap(&countingEngine{}, 8, 0).(*MetricsEngine); !ok {
		t.Errorf("expected a bare metrics engine without a cache TTL")
	}
	if _, ok := Wrap(&countingEngine{}, 8, time.Minute).(*CachingEngine); !ok {
		t.Errorf("expected a caching engine with a cache TTL")
	}
}
