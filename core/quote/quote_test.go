package quote

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

// TestParseAmount checks separator and currency handling
func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12.50", "12.5", true},
		{"12,50", "12.5", true},
		{"1.234,56 €", "1234.56", true},
		{"$1,234.56", "1234.56", true},
		{"1 000,5", "1000.5", true},
		{"", "0", false},
		{NotAvailable, "0", false},
		{"abc", "0", false},
	}

	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		if ok != tt.ok || !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseAmount(%q) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

// TestPriceOfFirstMatchWins checks only the first price output counts
func TestPriceOfFirstMatchWins(t *testing.T) {
	outputs := []Output{
		{Name: "Days", Type: "text", Value: "3"},
		{Name: "Total", Type: PriceOutputType, Value: "10.00"},
		{Name: "Other", Type: PriceOutputType, Value: "99.00"},
	}
	price, ok := PriceOf(outputs)
	if !ok || !price.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected 10, got %s (%v)", price, ok)
	}

	if _, ok := PriceOf([]Output{{Type: PriceOutputType, Value: NotAvailable}, {Type: PriceOutputType, Value: "5"}}); ok {
		t.Errorf("an unparseable first price must not fall through to the next one")
	}
	if _, ok := PriceOf(nil); ok {
		t.Errorf("no outputs must yield no price")
	}
}

// TestDisplayOutputs checks the filtering of the other-outputs set
func TestDisplayOutputs(t *testing.T) {
	outputs := []Output{
		{Name: "Total", Type: PriceOutputType, Value: "10"},
		{Name: "Days", Type: "text", Value: "3"},
		{Name: "Weight", Type: "text", Value: " "},
		{Name: "Stock", Type: "text", Value: NotAvailable},
		{Name: "Preview", Type: "imageUrl", Value: "https://x/y.png"},
		{Name: "Imagen frontal", Type: "text", Value: "https://x/z.png"},
		{Name: "thumb", Type: "img", Value: "data"},
		{Name: "Finish", Type: "text", Value: "matte"},
	}

	got := DisplayOutputs(outputs)
	if len(got) != 2 || got[0].Name != "Days" || got[1].Name != "Finish" {
		t.Errorf("unexpected display outputs %+v", got)
	}
}

// TestApplyAdditionals checks multipliers apply before net amounts
func TestApplyAdditionals(t *testing.T) {
	adds := []Additional{
		NewAdditional("Setup", AdditionalNetAmount, decimal.NewFromInt(5)),
		NewAdditional("Double", AdditionalQuantityMultiplier, decimal.NewFromInt(2)),
	}
	got := ApplyAdditionals(decimal.NewFromInt(100), adds)
	if !got.Equal(decimal.NewFromInt(205)) {
		t.Errorf("expected 100*2+5 = 205, got %s", got)
	}
	if adds[0].ID == "" || adds[0].ID == adds[1].ID {
		t.Errorf("expected distinct generated ids")
	}
	if AdditionalType("percent").Valid() {
		t.Errorf("unknown type reported valid")
	}
}

// TestCustomParameters checks the synthetic prompts round trip
func TestCustomParameters(t *testing.T) {
	params := CustomParameters(decimal.NewFromInt(3), decimal.RequireFromString("2.5"))
	if len(params) != 2 || params[0].ID != CustomQuantityID || params[1].ID != CustomUnitPriceID {
		t.Fatalf("unexpected parameters %+v", params)
	}

	qty, unit := CustomValues(params)
	if !CustomPrice(qty, unit).Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("expected 7.5, got %s", CustomPrice(qty, unit))
	}
}

// TestNumberAndText checks value readings
func TestNumberAndText(t *testing.T) {
	if f, ok := Number(json.Number("4.5")); !ok || f != 4.5 {
		t.Errorf("json.Number: got %v, %v", f, ok)
	}
	if f, ok := Number("1.000,5"); !ok || f != 1000.5 {
		t.Errorf("string: got %v, %v", f, ok)
	}
	if _, ok := Number(true); ok {
		t.Errorf("bool must not read as a number")
	}
	if s := Text(12.0); s != "12" {
		t.Errorf("expected 12, got %q", s)
	}
	if s := Text(nil); s != "" {
		t.Errorf("expected empty, got %q", s)
	}
}

// TestSnapshotWireNames checks the field names exchanged with the parent
func TestSnapshotWireNames(t *testing.T) {
	data, err := json.Marshal(Snapshot{ProductID: "p", Prompts: []Parameter{}, Outputs: []Output{}, ItemAdditionals: []Additional{}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"productId", "prompts", "outputs", "price", "itemDescription", "itemAdditionals", "isFinalized"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %s in %s", key, data)
		}
	}
	if _, ok := m["multi"]; ok {
		t.Errorf("multi must be omitted when unset")
	}
}
