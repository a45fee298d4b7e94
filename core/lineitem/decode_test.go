package lineitem

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"easyquote/core/quote"
	qerrors "easyquote/internal/errors"
)

// TestDecodeSnapshotEmpty checks absent data yields no snapshot
func TestDecodeSnapshotEmpty(t *testing.T) {
	for _, raw := range []string{"", "  ", "null", `{}`, `{"prompts":[]}`} {
		snap, err := DecodeSnapshot([]byte(raw))
		if err != nil {
			t.Errorf("%q: unexpected error %v", raw, err)
		}
		if snap != nil {
			t.Errorf("%q: expected no snapshot, got %+v", raw, snap)
		}
	}
}

// TestDecodeSnapshotPromptShapes checks both historical prompt encodings decode alike
func TestDecodeSnapshotPromptShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"array", `{"productId":"p","prompts":[
			{"id":"b","label":"Height","value":20,"order":2},
			{"id":"a","label":"Width","value":"10","order":1}
		]}`},
		{"keyed objects", `{"productId":"p","prompts":{
			"a":{"label":"Width","value":"10","order":1},
			"b":{"label":"Height","value":20,"order":2}
		}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := DecodeSnapshot([]byte(tt.raw))
			if err != nil {
				t.Fatalf("DecodeSnapshot: %v", err)
			}
			if len(snap.Prompts) != 2 {
				t.Fatalf("expected 2 prompts, got %+v", snap.Prompts)
			}
			if snap.Prompts[0].ID != "a" || snap.Prompts[0].Label != "Width" || snap.Prompts[0].Value != "10" {
				t.Errorf("unexpected first prompt %+v", snap.Prompts[0])
			}
			if snap.Prompts[1].Value != json.Number("20") {
				t.Errorf("expected numeric value kept as json.Number, got %#v", snap.Prompts[1].Value)
			}
		})
	}
}

// TestDecodeSnapshotBareValues checks keyed prompts holding bare scalars
func TestDecodeSnapshotBareValues(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`{"productId":"p","prompts":{"a":"red","b":3}}`))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(snap.Prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(snap.Prompts))
	}
	for _, p := range snap.Prompts {
		if p.Order != quote.DefaultOrder {
			t.Errorf("prompt %s: expected sentinel order, got %d", p.ID, p.Order)
		}
	}
	if snap.Prompts[0].ID != "a" || snap.Prompts[0].Value != "red" {
		t.Errorf("unexpected prompt %+v", snap.Prompts[0])
	}
}

// TestDecodeSnapshotAdditionals checks legacy keyed additionals become a list
func TestDecodeSnapshotAdditionals(t *testing.T) {
	raw := `{"productId":"p","prompts":[],"itemAdditionals":{
		"y":{"name":"Rush","value":"5"},
		"x":{"name":"Double","type":"quantity_multiplier","value":2}
	}}`
	snap, err := DecodeSnapshot([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(snap.ItemAdditionals) != 2 {
		t.Fatalf("expected 2 additionals, got %+v", snap.ItemAdditionals)
	}
	first, second := snap.ItemAdditionals[0], snap.ItemAdditionals[1]
	if first.ID != "x" || first.Type != quote.AdditionalQuantityMultiplier || !first.Value.Equal(decimal.NewFromInt(2)) {
		t.Errorf("unexpected additional %+v", first)
	}
	if second.ID != "y" || second.Type != quote.AdditionalNetAmount {
		t.Errorf("missing type must default to net amount: %+v", second)
	}
}

// TestDecodeSnapshotFields checks outputs, price and multi-quantity data
func TestDecodeSnapshotFields(t *testing.T) {
	raw := `{
		"productId": "p",
		"prompts": [{"id":"a","value":1}],
		"outputs": [{"name":"Total","type":"price","value":12.5},{"name":"Days","type":"text","value":"3"}],
		"price": "12,50",
		"itemDescription": "Flyers",
		"isFinalized": true,
		"multi": {"qtyPrompt":"a","qtyInputs":[1,"5"],"rows":[{"qty":1,"totalPrice":"12.5","unitPrice":"12.5"}]}
	}`
	snap, err := DecodeSnapshot([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if snap.Outputs[0].Value != "12.5" {
		t.Errorf("numeric output not rendered as text: %q", snap.Outputs[0].Value)
	}
	if !snap.Price.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("expected price 12.5, got %s", snap.Price)
	}
	if !snap.IsFinalized || snap.ItemDescription != "Flyers" {
		t.Errorf("flags not decoded: %+v", snap)
	}
	if snap.Multi == nil || len(snap.Multi.QtyInputs) != 2 || snap.Multi.QtyInputs[1] != 5 {
		t.Fatalf("multi not decoded: %+v", snap.Multi)
	}
	if len(snap.Multi.Rows) != 1 || !snap.Multi.Rows[0].UnitPrice.Valid {
		t.Errorf("rows not decoded: %+v", snap.Multi.Rows)
	}
}

// TestDecodeSnapshotMalformed checks invalid data is reported as a parsing error
func TestDecodeSnapshotMalformed(t *testing.T) {
	for _, raw := range []string{`{`, `{"prompts":42}`, `{"productId":"p","itemAdditionals":"x"}`} {
		if _, err := DecodeSnapshot([]byte(raw)); !qerrors.IsType(err, qerrors.TypeParsing) {
			t.Errorf("%q: expected parsing error, got %v", raw, err)
		}
	}
}
