package lineitem

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"easyquote/core/quote"
	qerrors "easyquote/internal/errors"
)

// TestFieldStoreOrdering checks first-write order resolution and sorting
func TestFieldStoreOrdering(t *testing.T) {
	f := NewFieldStore()
	f.SetDefinitions([]quote.PromptDefinition{
		{ID: "b", Label: "Height", Sequence: 2},
		{ID: "a", Label: "Width", Sequence: 1},
	})

	f.Set("z", "x", "Unknown")
	f.Set("b", 20, "")
	f.Set("a", 10, "")

	got := f.Snapshot()
	want := []string{"a", "b", "z"}
	if len(got) != len(want) {
		t.Fatalf("expected %d params, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
	if got[0].Label != "Width" || got[0].Order != 1 {
		t.Errorf("definition not applied on first write: %+v", got[0])
	}
	if got[2].Order != quote.DefaultOrder {
		t.Errorf("unknown id must get the sentinel order, got %d", got[2].Order)
	}

	// later writes keep order and label
	f.Set("a", 11, "")
	if p, _ := f.Get("a"); p.Order != 1 || p.Label != "Width" || p.Value != 11 {
		t.Errorf("rewrite changed metadata: %+v", p)
	}
}

// TestFieldStoreRemap checks re-keying keeps values and honors existing entries
func TestFieldStoreRemap(t *testing.T) {
	f := NewFieldStore()
	f.Put(quote.Parameter{ID: "1", Label: "Width", Value: 10, Order: 1})
	f.Put(quote.Parameter{ID: "2", Label: "Height", Value: 20, Order: 2})
	f.Put(quote.Parameter{ID: "3", Label: "Colour", Value: "red", Order: 3})
	f.Put(quote.Parameter{ID: "canon-h", Label: "Height", Value: 25, Order: 2})

	f.Remap(map[string]string{"1": "canon-w", "2": "canon-h"}, []string{"3"})

	if f.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", f.Len())
	}
	if p, ok := f.Get("canon-w"); !ok || p.Value != 10 {
		t.Errorf("width not re-keyed: %+v", p)
	}
	if p, _ := f.Get("canon-h"); p.Value != 25 {
		t.Errorf("existing entry must win, got %v", p.Value)
	}
	if _, ok := f.Get("3"); ok {
		t.Errorf("dropped id still present")
	}
}

// TestDebouncerForwardsOnlyLastValue checks burst collapse
func TestDebouncerForwardsOnlyLastValue(t *testing.T) {
	var mu sync.Mutex
	var got []int
	done := make(chan struct{}, 10)

	d := NewDebouncer(20*time.Millisecond, func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
		done <- struct{}{}
	})
	for i := 1; i <= 5; i++ {
		d.Observe(i)
	}
	if !d.Pending() {
		t.Errorf("expected a pending value")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never fired")
	}
	time.Sleep(40 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != 5 {
		t.Errorf("expected only [5], got %v", got)
	}
}

// TestDebouncerCancelAndStop checks dropped values are never delivered
func TestDebouncerCancelAndStop(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func(int) { fired.Add(1) })

	d.Observe(1)
	d.Cancel()
	d.Stop()
	d.Observe(2)
	time.Sleep(40 * time.Millisecond)

	if n := fired.Load(); n != 0 {
		t.Errorf("expected no delivery, got %d", n)
	}
	if d.Pending() {
		t.Errorf("stopped debouncer reports pending")
	}
}

// TestClassifyRequest checks the request-shape table
func TestClassifyRequest(t *testing.T) {
	tests := []struct {
		name      string
		lifecycle Lifecycle
		hasParams bool
		initial   bool
		forced    bool
		want      RequestShape
	}{
		{"new without params", LifecycleNew, false, false, false, ShapeDescribe},
		{"new with params", LifecycleNew, true, false, false, ShapeDescribe},
		{"loaded first pass", LifecycleLoaded, true, false, false, ShapeRecompute},
		{"loaded first pass empty", LifecycleLoaded, false, false, false, ShapeRecompute},
		{"loaded later pass", LifecycleLoaded, true, true, false, ShapeNone},
		{"loaded forced", LifecycleLoaded, true, true, true, ShapeRecompute},
		{"edited with params", LifecycleEdited, true, true, false, ShapeRecompute},
		{"edited without params", LifecycleEdited, false, true, false, ShapeDescribe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyRequest(tt.lifecycle, tt.hasParams, tt.initial, tt.forced)
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	if !LifecycleNew.AcceptsRemoteDefaults() || LifecycleLoaded.AcceptsRemoteDefaults() || LifecycleEdited.AcceptsRemoteDefaults() {
		t.Errorf("only new items may accept remote defaults")
	}
}

// TestNormalizeValue checks request value normalization
func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		in   any
		want any
		ok   bool
	}{
		{nil, nil, false},
		{"", nil, false},
		{"   ", nil, false},
		{"#ff00aa", "FF00AA", true},
		{"ff00aa", "FF00AA", true},
		{"#123456", "123456", true},
		{"100000", 100000.0, true},
		{"12,5", 12.5, true},
		{"12.5", 12.5, true},
		{" -3 ", -3.0, true},
		{json.Number("7"), 7.0, true},
		{42, 42.0, true},
		{true, true, true},
		{"  Glossy ", "Glossy", true},
		{"1.234,5", "1.234,5", true},
	}

	for _, tt := range tests {
		got, ok := NormalizeValue(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("NormalizeValue(%#v) = %#v, %v; want %#v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

// TestBuildInputsOmitsEmptyValues checks omission of unset prompts
func TestBuildInputsOmitsEmptyValues(t *testing.T) {
	inputs := BuildInputs([]quote.Parameter{
		{ID: "a", Value: "5"},
		{ID: "b", Value: ""},
		{ID: "c", Value: nil},
	})
	if len(inputs) != 1 || inputs[0].ID != "a" || inputs[0].Value != 5.0 {
		t.Errorf("unexpected inputs %+v", inputs)
	}
}

// TestReconcileByLabel checks re-keying, canonical passthrough and drops
func TestReconcileByLabel(t *testing.T) {
	defs := []quote.PromptDefinition{
		{ID: widthID, Label: "Width"},
		{ID: heightID, Label: "Height"},
	}
	params := []quote.Parameter{
		{ID: "17", Label: " width ", Value: 10},
		{ID: heightID, Label: "Height", Value: 20},
		{ID: "18", Label: "HEIGHT", Value: 99},
		{ID: "19", Label: "Finish", Value: "matte"},
	}

	rec := Reconcile(params, defs)
	if len(rec.Params) != 2 {
		t.Fatalf("expected 2 params, got %+v", rec.Params)
	}
	if rec.Params[0].ID != widthID || rec.Params[0].Value != 10 {
		t.Errorf("width not re-keyed: %+v", rec.Params[0])
	}
	if rec.Params[1].ID != heightID || rec.Params[1].Value != 20 {
		t.Errorf("canonical height must be kept: %+v", rec.Params[1])
	}
	if rec.Mapping["17"] != widthID {
		t.Errorf("unexpected mapping %v", rec.Mapping)
	}
	if len(rec.Dropped) != 2 || rec.Dropped[0] != "18" || rec.Dropped[1] != "19" {
		t.Errorf("unexpected drops %v", rec.Dropped)
	}
}

// TestIsCanonicalID checks identifier format detection
func TestIsCanonicalID(t *testing.T) {
	if !IsCanonicalID(widthID) {
		t.Errorf("expected %s to be canonical", widthID)
	}
	for _, id := range []string{"", "12345", "{11111111-1111-1111-1111-111111111111}", "11111111111111111111111111111111"} {
		if IsCanonicalID(id) {
			t.Errorf("expected %q to be rejected", id)
		}
	}
}

// TestBatchRowMath checks unit price division and the zero guard
func TestBatchRowMath(t *testing.T) {
	price := func(v string) []quote.Output {
		return []quote.Output{{Name: "Total", Type: "price", Value: v}}
	}

	row := NewBatchRow(5, price("200"))
	if !row.UnitPrice.Valid || !row.UnitPrice.Decimal.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected unit price 40, got %+v", row.UnitPrice)
	}

	row = NewBatchRow(1, price("50"))
	if !row.UnitPrice.Decimal.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected unit price 50, got %s", row.UnitPrice.Decimal)
	}

	row = NewBatchRow(0, price("50"))
	if row.UnitPrice.Valid {
		t.Errorf("zero quantity must yield no unit price, got %s", row.UnitPrice.Decimal)
	}
}

// TestBatchEngineIsAllOrNothing checks a single failure discards every row
func TestBatchEngineIsAllOrNothing(t *testing.T) {
	engine := newFakeEngine()
	engine.price = qtyPrice
	b := NewBatchEngine(engine, 3, zap.NewNop())

	params := []quote.Parameter{{ID: qtyID, Value: 1}, {ID: widthID, Value: 10}}
	rows, err := b.Run(context.Background(), "prod-b", "tok", params, qtyID, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected quantities truncated to 3, got %d rows", len(rows))
	}
	for i, req := range engine.recomputes {
		if v, _ := inputValue(req, widthID); v != 10.0 {
			t.Errorf("request %d changed a non-quantity prompt: %v", i, v)
		}
	}

	rows, err = b.Run(context.Background(), "prod-b", "tok", params, qtyID, []float64{1, 10})
	if !qerrors.IsType(err, qerrors.TypeBatch) {
		t.Fatalf("expected batch error, got %v", err)
	}
	if rows != nil {
		t.Errorf("expected no rows on failure, got %d", len(rows))
	}
}

// TestEmitterIsIdempotent checks equal content is emitted once
func TestEmitterIsIdempotent(t *testing.T) {
	var emitted []quote.Snapshot
	e := NewEmitter(func(s quote.Snapshot) { emitted = append(emitted, s) })

	snap := quote.Snapshot{
		ProductID: "prod-a",
		Prompts:   []quote.Parameter{{ID: widthID, Value: 10.0, Order: 1}},
		Price:     decimal.RequireFromString("12.50"),
	}

	if res, _ := e.Offer(snap, Guard{}); res != Emitted {
		t.Fatalf("expected first offer emitted, got %s", res)
	}
	if res, _ := e.Offer(snap, Guard{}); res != EmitUnchanged {
		t.Errorf("expected unchanged, got %s", res)
	}

	snap.Price = decimal.RequireFromString("13")
	if res, _ := e.Offer(snap, Guard{}); res != Emitted {
		t.Errorf("expected changed content emitted, got %s", res)
	}
	if len(emitted) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(emitted))
	}
}

// TestEmitterSuppression checks the guard conditions
func TestEmitterSuppression(t *testing.T) {
	calls := 0
	e := NewEmitter(func(quote.Snapshot) { calls++ })
	snap := quote.Snapshot{ProductID: "prod-a", Prompts: []quote.Parameter{{ID: widthID}}}

	tests := []struct {
		name  string
		snap  quote.Snapshot
		guard Guard
	}{
		{"initializing", snap, Guard{Initializing: true}},
		{"pending", snap, Guard{Pending: true}},
		{"no prompts", quote.Snapshot{ProductID: "prod-a"}, Guard{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res, _ := e.Offer(tt.snap, tt.guard); res != EmitSuppressed {
				t.Errorf("expected suppressed, got %s", res)
			}
		})
	}

	if res, _ := e.Offer(quote.Snapshot{ProductID: quote.CustomProductID}, Guard{}); res != Emitted {
		t.Errorf("custom products emit without prompts, got %s", res)
	}
	if calls != 1 {
		t.Errorf("expected 1 notification, got %d", calls)
	}

	if err := e.Prime(snap); err != nil {
		t.Fatalf("Prime: %v", err)
	}
	if res, _ := e.Offer(snap, Guard{}); res != EmitUnchanged {
		t.Errorf("primed content must not be emitted, got %s", res)
	}
}
