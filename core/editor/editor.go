// Package editor - Quote editor aggregating the line items of one quote.
//
// The Editor is the parent every line-item Synchronizer reports to. It keeps the
// latest snapshot per item, persists changes in the background through a single
// writer goroutine and computes quote totals.
package editor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"easyquote/core/quote"
	qerrors "easyquote/internal/errors"
	"easyquote/internal/logging"
)

// Store is the persistence the editor writes to
type Store interface {
	SaveItem(ctx context.Context, item quote.Record) error
	DeleteItem(ctx context.Context, quoteID, itemID string) error
}

// Options configures an Editor
type Options struct {
	QuoteID string

	// Store may be nil, in which case nothing is persisted
	Store Store

	// WriteTimeout bounds each store call
	WriteTimeout time.Duration

	Logger *zap.Logger
}

type entry struct {
	snapshot  quote.Snapshot
	finalized bool
}

type opKind int

const (
	opSave opKind = iota
	opDelete
	opFlush
)

type op struct {
	kind   opKind
	record quote.Record
	done   chan struct{}
}

// Editor implements lineitem.Parent for one quote
type Editor struct {
	quoteID string
	store   Store
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	items   map[string]*entry
	order   []string
	lastErr error

	qmu    sync.Mutex
	queue  []op
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

// New creates an editor and starts its writer
func New(opts Options) *Editor {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	e := &Editor{
		quoteID: opts.QuoteID,
		store:   opts.Store,
		timeout: opts.WriteTimeout,
		logger:  logging.Or(opts.Logger).With(zap.String("quote", opts.QuoteID)),
		items:   make(map[string]*entry),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// OnChange records the latest snapshot of an item and queues it for persistence
func (e *Editor) OnChange(itemID string, snapshot quote.Snapshot) {
	data, err := json.Marshal(snapshot)

	e.mu.Lock()
	ent, ok := e.items[itemID]
	if !ok {
		ent = &entry{}
		e.items[itemID] = ent
		e.order = append(e.order, itemID)
	}
	ent.snapshot = snapshot
	ent.finalized = snapshot.IsFinalized
	if err != nil {
		e.lastErr = qerrors.Internal("failed to encode snapshot", err)
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Error("Snapshot not persisted", zap.String("item", itemID), zap.Error(err))
		return
	}
	e.enqueue(op{kind: opSave, record: quote.Record{
		QuoteID:   e.quoteID,
		ItemID:    itemID,
		Data:      data,
		UpdatedAt: time.Now(),
	}})
}

// OnRemove forgets an item and queues its deletion
func (e *Editor) OnRemove(itemID string) {
	e.mu.Lock()
	if _, ok := e.items[itemID]; ok {
		delete(e.items, itemID)
		for i, id := range e.order {
			if id == itemID {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
	e.mu.Unlock()

	e.enqueue(op{kind: opDelete, record: quote.Record{QuoteID: e.quoteID, ItemID: itemID}})
}

// OnFinishEdit marks an item as finalized
func (e *Editor) OnFinishEdit(itemID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.items[itemID]; ok {
		ent.finalized = true
	}
	e.logger.Debug("Line item finalized", zap.String("item", itemID))
}

// Snapshot returns the latest snapshot received for an item
func (e *Editor) Snapshot(itemID string) (quote.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.items[itemID]
	if !ok {
		return quote.Snapshot{}, false
	}
	return ent.snapshot, true
}

// Items returns item ids in the order they were first reported
func (e *Editor) Items() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.order...)
}

// Finalized reports whether an item finished editing
func (e *Editor) Finalized(itemID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.items[itemID]
	return ok && ent.finalized
}

// Err returns the last persistence error, if any
func (e *Editor) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Flush waits until every queued write has been attempted
func (e *Editor) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !e.enqueue(op{kind: opFlush, done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the writer
func (e *Editor) Close() error {
	e.qmu.Lock()
	if e.closed {
		e.qmu.Unlock()
		<-e.done
		return nil
	}
	e.closed = true
	e.qmu.Unlock()

	e.signal()
	<-e.done
	return e.Err()
}

func (e *Editor) enqueue(o op) bool {
	e.qmu.Lock()
	if e.closed {
		e.qmu.Unlock()
		return false
	}
	e.queue = append(e.queue, o)
	e.qmu.Unlock()

	e.signal()
	return true
}

func (e *Editor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Editor) run() {
	defer close(e.done)
	for {
		e.qmu.Lock()
		batch := e.queue
		e.queue = nil
		closed := e.closed
		e.qmu.Unlock()

		for _, o := range batch {
			e.apply(o)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-e.wake
	}
}

func (e *Editor) apply(o op) {
	if o.kind == opFlush {
		close(o.done)
		return
	}
	if e.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	var err error
	switch o.kind {
	case opSave:
		err = e.store.SaveItem(ctx, o.record)
	case opDelete:
		err = e.store.DeleteItem(ctx, o.record.QuoteID, o.record.ItemID)
	}
	if err != nil {
		e.logger.Warn("Line item write failed", zap.String("item", o.record.ItemID), zap.Error(err))
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()
	}
}

// ItemTotal is the priced total of one line item
type ItemTotal struct {
	ItemID    string          `json:"itemId"`
	ProductID string          `json:"productId"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
	Finalized bool            `json:"finalized"`
}

// Totals is the quote total broken down per item
type Totals struct {
	Items []ItemTotal     `json:"items"`
	Grand decimal.Decimal `json:"grand"`
}

// Totals computes item totals with their additionals applied, plus the grand total
func (e *Editor) Totals() Totals {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := Totals{Items: make([]ItemTotal, 0, len(e.order)), Grand: decimal.Zero}
	for _, id := range e.order {
		ent := e.items[id]
		total := quote.ApplyAdditionals(ent.snapshot.Price, ent.snapshot.ItemAdditionals)
		t.Items = append(t.Items, ItemTotal{
			ItemID:    id,
			ProductID: ent.snapshot.ProductID,
			Price:     ent.snapshot.Price,
			Total:     total,
			Finalized: ent.finalized,
		})
		t.Grand = t.Grand.Add(total)
	}
	return t
}
