package lineitem

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"

	"easyquote/core/quote"
	qerrors "easyquote/internal/errors"
)

// persistedSnapshot accepts every historical shape of a stored line item
type persistedSnapshot struct {
	ProductID       string            `json:"productId"`
	Prompts         json.RawMessage   `json:"prompts"`
	Outputs         []persistedOutput `json:"outputs"`
	Price           json.RawMessage   `json:"price"`
	Multi           *persistedMulti   `json:"multi"`
	ItemDescription string            `json:"itemDescription"`
	ItemAdditionals json.RawMessage   `json:"itemAdditionals"`
	IsFinalized     bool              `json:"isFinalized"`
}

type persistedPrompt struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Value json.RawMessage `json:"value"`
	Order *int            `json:"order"`
}

type persistedOutput struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type persistedAdditional struct {
	ID    string               `json:"id"`
	Name  string               `json:"name"`
	Type  quote.AdditionalType `json:"type"`
	Value decimal.Decimal      `json:"value"`
}

type persistedMulti struct {
	QtyPrompt string            `json:"qtyPrompt"`
	QtyInputs []json.RawMessage `json:"qtyInputs"`
	Rows      []persistedRow    `json:"rows"`
}

type persistedRow struct {
	Qty        float64             `json:"qty"`
	Outputs    []persistedOutput   `json:"outputs"`
	TotalPrice decimal.Decimal     `json:"totalPrice"`
	UnitPrice  decimal.NullDecimal `json:"unitPrice"`
}

// DecodeSnapshot normalizes a persisted line item into the canonical snapshot shape.
// Prompts may be an array of objects or an object keyed by prompt id (whose entries
// are either objects or bare values); additionals may be an array or a legacy object
// keyed by id. A nil result with a nil error means there is no persisted data.
func DecodeSnapshot(raw []byte) (*quote.Snapshot, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var p persistedSnapshot
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, qerrors.Parsing("invalid persisted line item", err)
	}

	prompts, err := decodePrompts(p.Prompts)
	if err != nil {
		return nil, err
	}
	if p.ProductID == "" && len(prompts) == 0 {
		return nil, nil
	}

	adds, err := decodeAdditionals(p.ItemAdditionals)
	if err != nil {
		return nil, err
	}

	snap := &quote.Snapshot{
		ProductID:       p.ProductID,
		Prompts:         prompts,
		Outputs:         decodeOutputs(p.Outputs),
		Price:           decodeDecimal(p.Price),
		ItemDescription: p.ItemDescription,
		ItemAdditionals: adds,
		IsFinalized:     p.IsFinalized,
	}
	if p.Multi != nil {
		snap.Multi = decodeMulti(p.Multi)
	}
	return snap, nil
}

func decodePrompts(raw json.RawMessage) ([]quote.Parameter, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []quote.Parameter{}, nil
	}

	var params []quote.Parameter
	switch raw[0] {
	case '[':
		var list []persistedPrompt
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, qerrors.Parsing("invalid prompt list", err)
		}
		for _, pp := range list {
			if pp.ID == "" {
				continue
			}
			params = append(params, pp.parameter(pp.ID))
		}
	case '{':
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, qerrors.Parsing("invalid prompt map", err)
		}
		for id, entry := range keyed {
			entry = bytes.TrimSpace(entry)
			if len(entry) > 0 && entry[0] == '{' {
				var pp persistedPrompt
				if err := json.Unmarshal(entry, &pp); err != nil {
					return nil, qerrors.Parsing("invalid prompt entry "+id, err)
				}
				params = append(params, pp.parameter(id))
				continue
			}
			params = append(params, quote.Parameter{ID: id, Value: decodeScalar(entry), Order: quote.DefaultOrder})
		}
	default:
		return nil, qerrors.New(qerrors.TypeParsing, "prompts must be an array or an object")
	}

	sort.SliceStable(params, func(i, j int) bool {
		if params[i].Order != params[j].Order {
			return params[i].Order < params[j].Order
		}
		return params[i].ID < params[j].ID
	})
	return params, nil
}

func (pp persistedPrompt) parameter(id string) quote.Parameter {
	order := quote.DefaultOrder
	if pp.Order != nil {
		order = *pp.Order
	}
	return quote.Parameter{ID: id, Label: pp.Label, Value: decodeScalar(pp.Value), Order: order}
}

func decodeAdditionals(raw json.RawMessage) ([]quote.Additional, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []quote.Additional{}, nil
	}

	var list []persistedAdditional
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, qerrors.Parsing("invalid additionals list", err)
		}
	case '{':
		var keyed map[string]persistedAdditional
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, qerrors.Parsing("invalid legacy additionals", err)
		}
		ids := make([]string, 0, len(keyed))
		for id := range keyed {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			a := keyed[id]
			if a.ID == "" {
				a.ID = id
			}
			list = append(list, a)
		}
	default:
		return nil, qerrors.New(qerrors.TypeParsing, "additionals must be an array or an object")
	}

	adds := make([]quote.Additional, 0, len(list))
	for _, a := range list {
		t := a.Type
		if t == "" {
			t = quote.AdditionalNetAmount
		}
		adds = append(adds, quote.Additional{ID: a.ID, Name: a.Name, Type: t, Value: a.Value})
	}
	return adds, nil
}

func decodeOutputs(list []persistedOutput) []quote.Output {
	outputs := make([]quote.Output, 0, len(list))
	for _, o := range list {
		outputs = append(outputs, quote.Output{Name: o.Name, Type: o.Type, Value: quote.Text(decodeScalar(o.Value))})
	}
	return outputs
}

func decodeMulti(p *persistedMulti) *quote.MultiQuantity {
	m := &quote.MultiQuantity{
		QtyPrompt: p.QtyPrompt,
		QtyInputs: make([]float64, 0, len(p.QtyInputs)),
		Rows:      make([]quote.BatchRow, 0, len(p.Rows)),
	}
	for _, q := range p.QtyInputs {
		f, _ := quote.Number(decodeScalar(q))
		m.QtyInputs = append(m.QtyInputs, f)
	}
	for _, r := range p.Rows {
		m.Rows = append(m.Rows, quote.BatchRow{
			Qty:        r.Qty,
			Outputs:    decodeOutputs(r.Outputs),
			TotalPrice: r.TotalPrice,
			UnitPrice:  r.UnitPrice,
		})
	}
	return m
}

// decodeScalar keeps numbers as json.Number so their textual form survives a round trip
func decodeScalar(raw json.RawMessage) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

func decodeDecimal(raw json.RawMessage) decimal.Decimal {
	switch v := decodeScalar(raw).(type) {
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return d
		}
	case string:
		if d, ok := quote.ParseAmount(v); ok {
			return d
		}
	}
	return decimal.Zero
}
