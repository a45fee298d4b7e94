package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"easyquote/core/editor"
	"easyquote/core/lineitem"
	"easyquote/core/quote"
)

const widthID = "11111111-1111-1111-1111-111111111111"

// flatEngine prices width * 2 and describes one prompt
type flatEngine struct{}

func (flatEngine) Describe(ctx context.Context, req quote.PricingRequest) (*quote.PricingResponse, error) {
	return &quote.PricingResponse{
		Prompts: []quote.PromptDefinition{{ID: widthID, Label: "Width", Type: "number", CurrentValue: 10.0, Sequence: 1}},
	}, nil
}

func (flatEngine) Recompute(ctx context.Context, req quote.PricingRequest) (*quote.PricingResponse, error) {
	width := 0.0
	for _, in := range req.Inputs {
		if in.ID == widthID {
			width, _ = quote.Number(in.Value)
		}
	}
	return &quote.PricingResponse{
		Prompts: []quote.PromptDefinition{{ID: widthID, Label: "Width", Type: "number", CurrentValue: width, Sequence: 1}},
		Outputs: []quote.Output{{Name: "Total", Type: quote.PriceOutputType, Value: decimal.NewFromFloat(width * 2).String()}},
	}, nil
}

type token struct{}

func (token) Token(ctx context.Context) (string, error) { return "tok", nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	a := New(
		func(quoteID string) *editor.Editor { return editor.New(editor.Options{QuoteID: quoteID}) },
		func(itemID string, parent lineitem.Parent) *lineitem.Synchronizer {
			return lineitem.New(itemID, lineitem.Dependencies{
				Pricing:     flatEngine{},
				Credentials: token{},
				Parent:      parent,
			}, lineitem.Options{Quiescence: 20 * time.Millisecond, MaxQuantities: 10})
		},
		&Config{EnableMetrics: true, WaitTimeout: 3 * time.Second},
		nil,
	)
	srv := httptest.NewServer(a.Router())
	t.Cleanup(func() {
		srv.Close()
		a.Shutdown(context.Background())
	})
	return srv
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

// TestItemLifecycleOverHTTP checks create, edit, totals and removal
func TestItemLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1/quotes/q1/items"

	var created ItemResponse
	if code := do(t, http.MethodPost, base+"?wait=true", CreateItemRequest{ItemID: "i1", ProductID: "prod"}, &created); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	if created.Status.Lifecycle != "edited" || !created.Snapshot.Price.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected defaults priced at 20, got %+v", created)
	}

	var edited ItemResponse
	code := do(t, http.MethodPatch, base+"/i1/fields?wait=true", []FieldUpdate{{ID: widthID, Value: 50}}, &edited)
	if code != http.StatusOK {
		t.Fatalf("patch: status %d", code)
	}
	if !edited.Snapshot.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected price 100 after edit, got %s", edited.Snapshot.Price)
	}

	var totals editor.Totals
	if code := do(t, http.MethodGet, srv.URL+"/api/v1/quotes/q1/totals", nil, &totals); code != http.StatusOK {
		t.Fatalf("totals: status %d", code)
	}
	if !totals.Grand.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected grand total 100, got %s", totals.Grand)
	}

	if code := do(t, http.MethodDelete, base+"/i1", nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: status %d", code)
	}
	var e ErrorResponse
	if code := do(t, http.MethodGet, base+"/i1", nil, &e); code != http.StatusNotFound {
		t.Errorf("expected 404 after removal, got %d", code)
	}
}

// TestErrorsMapToStatus checks typed errors become HTTP statuses
func TestErrorsMapToStatus(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1/quotes/q1/items"

	var e ErrorResponse
	if code := do(t, http.MethodGet, base+"/missing", nil, &e); code != http.StatusNotFound || e.Success {
		t.Errorf("expected 404, got %d %+v", code, e)
	}

	if code := do(t, http.MethodPost, base, CreateItemRequest{ItemID: "i1"}, nil); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	if code := do(t, http.MethodPost, base, CreateItemRequest{ItemID: "i1"}, &e); code != http.StatusConflict {
		t.Errorf("expected 409 for a duplicate item, got %d", code)
	}
	if code := do(t, http.MethodPatch, base+"/i1/fields", []FieldUpdate{{ID: widthID, Value: 1}}, &e); code != http.StatusConflict {
		t.Errorf("expected 409 when no product is selected, got %d", code)
	}
	if code := do(t, http.MethodPost, base, CreateItemRequest{ItemID: "i2", Snapshot: json.RawMessage(`[1,2]`)}, &e); code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed snapshot, got %d", code)
	}
	if code := do(t, http.MethodGet, srv.URL+"/api/v1/quotes/unknown/totals", nil, &e); code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown quote, got %d", code)
	}
}

// TestHealth checks the health endpoint and CORS preflight
func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]string
	if code := do(t, http.MethodGet, srv.URL+"/health", nil, &body); code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("unexpected health response %d %v", code, body)
	}
	if code := do(t, http.MethodOptions, srv.URL+"/api/v1/quotes/q1/items", nil, nil); code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", code)
	}
}
