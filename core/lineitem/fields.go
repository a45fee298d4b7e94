package lineitem

import (
	"sort"

	"easyquote/core/quote"
)

// FieldStore holds the current value of each prompt of one line item.
// It is not safe for concurrent use; the Synchronizer guards it.
type FieldStore struct {
	entries     map[string]quote.Parameter
	definitions map[string]quote.PromptDefinition
}

// NewFieldStore creates an empty store
func NewFieldStore() *FieldStore {
	return &FieldStore{
		entries:     make(map[string]quote.Parameter),
		definitions: make(map[string]quote.PromptDefinition),
	}
}

// Set writes a value. The first write of an id takes its order from the last known
// prompt definitions, or DefaultOrder when the id is unknown. An empty label keeps
// the label already known for the id.
func (f *FieldStore) Set(id string, value any, label string) {
	p, ok := f.entries[id]
	if !ok {
		p = quote.Parameter{ID: id, Order: quote.DefaultOrder}
		if def, known := f.definitions[id]; known {
			p.Order = def.Sequence
			p.Label = def.Label
		}
	}
	if label != "" {
		p.Label = label
	}
	p.Value = value
	f.entries[id] = p
}

// Put stores a parameter as-is, keeping its order
func (f *FieldStore) Put(p quote.Parameter) {
	f.entries[p.ID] = p
}

// Get returns the parameter stored under id
func (f *FieldStore) Get(id string) (quote.Parameter, bool) {
	p, ok := f.entries[id]
	return p, ok
}

// Len returns the number of stored parameters
func (f *FieldStore) Len() int {
	return len(f.entries)
}

// Snapshot returns the parameters sorted by order, ties broken by id
func (f *FieldStore) Snapshot() []quote.Parameter {
	params := make([]quote.Parameter, 0, len(f.entries))
	for _, p := range f.entries {
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool {
		if params[i].Order != params[j].Order {
			return params[i].Order < params[j].Order
		}
		return params[i].ID < params[j].ID
	})
	return params
}

// Replace swaps the whole content of the store
func (f *FieldStore) Replace(params []quote.Parameter) {
	f.entries = make(map[string]quote.Parameter, len(params))
	for _, p := range params {
		f.entries[p.ID] = p
	}
}

// Remap re-keys parameters from old to new ids in place and removes dropped ids.
// Values and labels are kept; an existing entry under the new id wins.
func (f *FieldStore) Remap(mapping map[string]string, dropped []string) {
	for oldID, newID := range mapping {
		p, ok := f.entries[oldID]
		if !ok {
			continue
		}
		delete(f.entries, oldID)
		if _, exists := f.entries[newID]; exists {
			continue
		}
		p.ID = newID
		f.entries[newID] = p
	}
	for _, id := range dropped {
		delete(f.entries, id)
	}
}

// SetDefinitions records the prompt definitions last returned by the pricing engine
func (f *FieldStore) SetDefinitions(defs []quote.PromptDefinition) {
	if len(defs) == 0 {
		return
	}
	f.definitions = make(map[string]quote.PromptDefinition, len(defs))
	for _, d := range defs {
		f.definitions[d.ID] = d
	}
}

// Clear removes every parameter and definition
func (f *FieldStore) Clear() {
	f.entries = make(map[string]quote.Parameter)
	f.definitions = make(map[string]quote.PromptDefinition)
}
