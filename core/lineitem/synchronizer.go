package lineitem

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"easyquote/core/quote"
	qerrors "easyquote/internal/errors"
	"easyquote/internal/logging"
)

// DefaultQuiescence is the debounce window applied to prompt edits
const DefaultQuiescence = 350 * time.Millisecond

// Options tunes a Synchronizer
type Options struct {
	// Quiescence is the pause in edits required before pricing is requested
	Quiescence time.Duration

	// MaxQuantities caps the multi-quantity list
	MaxQuantities int

	// RequestTimeout bounds each pricing call; zero means no bound
	RequestTimeout time.Duration

	// Products is the active catalog, used to auto-fill the item description
	Products []quote.Product

	Logger *zap.Logger
}

// DefaultOptions returns the reference tuning
func DefaultOptions() Options {
	return Options{
		Quiescence:    DefaultQuiescence,
		MaxQuantities: DefaultMaxQuantities,
	}
}

// Dependencies are the collaborators a Synchronizer talks to
type Dependencies struct {
	Pricing     PricingEngine
	Credentials CredentialProvider
	Parent      Parent
}

// Status is a point-in-time view of the synchronizer for display
type Status struct {
	Phase     Phase
	Lifecycle Lifecycle
	ProductID string

	// Fetching is true while a primary or batch pricing call is in flight
	Fetching bool

	// Err is the last primary failure; cleared by the next successful pass
	Err error

	// BatchErr is the last multi-quantity failure
	BatchErr error

	// DroppedPrompts lists stale prompt ids removed because no canonical label matched
	DroppedPrompts []string
}

// pass is one debounced edit, carrying the parameters as they were when it was observed
type pass struct {
	seq    uint64
	params []quote.Parameter
}

// plan is the work decided for a settled pass
type plan struct {
	gen      uint64
	batchGen uint64

	shape     RequestShape
	productID string
	token     string
	params    []quote.Parameter

	runBatch   bool
	qtyPrompt  string
	quantities []float64
}

type multiState struct {
	enabled   bool
	qtyPrompt string
	qtyInputs []float64
	rows      []quote.BatchRow
}

func (m multiState) active() bool {
	return m.enabled && m.qtyPrompt != "" && len(m.qtyInputs) > 0
}

// Synchronizer keeps one line item's priced snapshot consistent with the pricing
// engine. All state is guarded by mu; network calls and the debounce wait run
// outside of it, and every response is tagged with the generation it was issued
// under so that answers overtaken by a newer pass or a product change are dropped.
type Synchronizer struct {
	id     string
	deps   Dependencies
	opts   Options
	logger *zap.Logger

	mu sync.Mutex

	closed          bool
	phase           Phase
	lifecycle       Lifecycle
	initializing    bool
	initialPassDone bool
	forced          bool

	productID   string
	fields      *FieldStore
	outputs     []quote.Output
	price       decimal.Decimal
	description string
	additionals []quote.Additional
	finalized   bool
	customQty   decimal.Decimal
	customUnit  decimal.Decimal

	multi      multiState
	batchDirty bool

	err      error
	batchErr error
	dropped  []string

	scheduleSeq   uint64
	settledSeq    uint64
	gen           uint64
	batchGen      uint64
	fetching      bool
	batchFetching bool

	// idle is closed once nothing is pending; created on demand by WaitIdle
	idle chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	debounce   *Debouncer[pass]
	emitter    *Emitter
	reconciler *Reconciler
	batch      *BatchEngine
}

// New creates an unmounted synchronizer for the item itemID
func New(itemID string, deps Dependencies, opts Options) *Synchronizer {
	if opts.Quiescence <= 0 {
		opts.Quiescence = DefaultQuiescence
	}
	logger := logging.Or(opts.Logger).With(zap.String("item", itemID))
	ctx, cancel := context.WithCancel(context.Background())

	s := &Synchronizer{
		id:          itemID,
		deps:        deps,
		opts:        opts,
		logger:      logger,
		phase:       PhaseUninitialized,
		lifecycle:   LifecycleNew,
		fields:      NewFieldStore(),
		price:       decimal.Zero,
		customQty:   decimal.Zero,
		customUnit:  decimal.Zero,
		ctx:         ctx,
		cancel:      cancel,
		reconciler:  NewReconciler(deps.Pricing, logger),
		batch:       NewBatchEngine(deps.Pricing, opts.MaxQuantities, logger),
		additionals: []quote.Additional{},
	}
	s.emitter = NewEmitter(func(snap quote.Snapshot) {
		if deps.Parent != nil {
			deps.Parent.OnChange(itemID, snap)
		}
	})
	s.debounce = NewDebouncer(opts.Quiescence, s.onSettled)
	return s
}

// ID returns the line item identifier
func (s *Synchronizer) ID() string {
	return s.id
}

// Mount loads the persisted line item, if any. Without persisted data the item is
// NEW and waits for a product selection. A persisted configurable item is LOADED
// and its first pass recomputes with the saved values.
func (s *Synchronizer) Mount(raw []byte) error {
	snap, decodeErr := DecodeSnapshot(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return qerrors.Precondition("line item is closed")
	}
	if s.phase != PhaseUninitialized || s.productID != "" {
		return qerrors.Precondition("line item is already mounted")
	}
	if decodeErr != nil {
		s.err = decodeErr
		s.lifecycle = LifecycleNew
		s.phase = PhaseReady
		s.logger.Warn("could not decode persisted line item", zap.Error(decodeErr))
		return decodeErr
	}
	if snap == nil {
		s.lifecycle = LifecycleNew
		s.phase = PhaseReady
		return nil
	}

	s.phase = PhaseInitializing
	s.initializing = true

	s.productID = snap.ProductID
	s.description = snap.ItemDescription
	s.additionals = append([]quote.Additional{}, snap.ItemAdditionals...)
	s.finalized = snap.IsFinalized
	s.outputs = append([]quote.Output{}, snap.Outputs...)
	s.price = snap.Price
	if snap.Multi != nil {
		s.multi = multiState{
			enabled:   true,
			qtyPrompt: snap.Multi.QtyPrompt,
			qtyInputs: append([]float64{}, snap.Multi.QtyInputs...),
			rows:      append([]quote.BatchRow{}, snap.Multi.Rows...),
		}
	}

	switch {
	case snap.IsCustom():
		s.customQty, s.customUnit = quote.CustomValues(snap.Prompts)
		s.lifecycle = LifecycleEdited
	case len(snap.Prompts) == 0:
		// a product without saved values has nothing to protect
		s.lifecycle = LifecycleNew
	default:
		s.fields.Replace(snap.Prompts)
		s.lifecycle = LifecycleLoaded
	}
	s.mirrorQuantityLocked()

	s.initializing = false
	s.phase = PhaseReady
	if err := s.emitter.Prime(s.buildLocked()); err != nil {
		s.logger.Error("failed to serialize loaded snapshot", zap.Error(err))
	}

	s.logger.Debug("line item mounted",
		zap.String("product", s.productID),
		zap.String("lifecycle", s.lifecycle.String()),
		zap.Int("prompts", len(snap.Prompts)))

	if s.productID != "" && !snap.IsCustom() {
		if s.lifecycle == LifecycleNew {
			s.description = s.descriptionFor(s.productID, s.description)
		}
		s.scheduleLocked()
	}
	return nil
}

// SelectProduct switches the item to productID. Selecting a different product tears
// down every piece of state tied to the previous one before anything is fetched.
func (s *Synchronizer) SelectProduct(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return err
	}
	if productID == s.productID {
		return nil
	}
	s.teardownLocked()
	s.productID = productID
	if productID == "" {
		return nil
	}

	s.phase = PhaseReady
	if productID == quote.CustomProductID {
		s.lifecycle = LifecycleEdited
		s.customQty = decimal.NewFromInt(1)
		s.customUnit = decimal.Zero
		s.offerLocked()
		return nil
	}

	s.description = s.descriptionFor(productID, "")
	s.scheduleLocked()
	return nil
}

func (s *Synchronizer) descriptionFor(productID, fallback string) string {
	if fallback != "" {
		return fallback
	}
	for _, p := range s.opts.Products {
		if p.ID == productID {
			return p.DisplayName
		}
	}
	return fallback
}

func (s *Synchronizer) teardownLocked() {
	if s.productID != "" {
		s.logger.Debug("tearing down product state", zap.String("product", s.productID))
	}
	s.debounce.Cancel()
	s.settledSeq = s.scheduleSeq
	s.gen++
	s.batchGen++
	s.fetching = false
	s.batchFetching = false

	s.fields.Clear()
	s.outputs = nil
	s.price = decimal.Zero
	s.description = ""
	s.additionals = []quote.Additional{}
	s.finalized = false
	s.customQty = decimal.Zero
	s.customUnit = decimal.Zero
	s.multi = multiState{}
	s.batchDirty = false

	s.err = nil
	s.batchErr = nil
	s.dropped = nil
	s.initialPassDone = false
	s.forced = false
	s.lifecycle = LifecycleNew
	s.phase = PhaseUninitialized
	s.signalIdleLocked()
}

// SetField records a user edit of one prompt and schedules a debounced pass.
// For a custom product only the synthetic quantity and unit price are accepted and
// they apply immediately.
func (s *Synchronizer) SetField(id string, value any, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editableLocked(); err != nil {
		return err
	}

	if s.productID == quote.CustomProductID {
		f, ok := quote.Number(value)
		if !ok {
			return qerrors.Newf(qerrors.TypeInput, "custom value for %s is not a number", id)
		}
		switch id {
		case quote.CustomQuantityID:
			s.customQty = decimal.NewFromFloat(f)
		case quote.CustomUnitPriceID:
			s.customUnit = decimal.NewFromFloat(f)
		default:
			return qerrors.Newf(qerrors.TypeInput, "custom products have no prompt %s", id)
		}
		s.offerLocked()
		return nil
	}

	s.fields.Set(id, value, label)
	s.lifecycle = LifecycleEdited
	if id == s.multi.qtyPrompt {
		s.mirrorQuantityLocked()
	}
	s.scheduleLocked()
	return nil
}

// SetCustom sets quantity and unit price of a custom product
func (s *Synchronizer) SetCustom(qty, unitPrice decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editableLocked(); err != nil {
		return err
	}
	if s.productID != quote.CustomProductID {
		return qerrors.Precondition("line item is not a custom product")
	}
	s.customQty, s.customUnit = qty, unitPrice
	s.offerLocked()
	return nil
}

// SetMultiQuantity configures multi-quantity pricing. The first slot always mirrors
// the live value of qtyPrompt; quantities beyond the configured maximum are ignored.
func (s *Synchronizer) SetMultiQuantity(enabled bool, qtyPrompt string, quantities []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editableLocked(); err != nil {
		return err
	}

	if !enabled {
		if !s.multi.enabled {
			return nil
		}
		s.multi = multiState{}
		s.batchGen++
		s.batchFetching = false
		s.batchErr = nil
		s.batchDirty = false
		s.settlePhaseLocked()
		s.offerLocked()
		return nil
	}

	if s.productID == quote.CustomProductID {
		return qerrors.Precondition("custom products have no multi-quantity mode")
	}
	p, ok := s.fields.Get(qtyPrompt)
	if !ok {
		return qerrors.Newf(qerrors.TypeInput, "unknown quantity prompt %s", qtyPrompt)
	}
	live, ok := quote.Number(p.Value)
	if !ok {
		return qerrors.Newf(qerrors.TypeInput, "quantity prompt %s is not numeric", qtyPrompt)
	}

	qtys := []float64{live}
	if len(quantities) > 1 {
		qtys = append(qtys, quantities[1:]...)
	}
	if len(qtys) > s.batch.Max() {
		qtys = qtys[:s.batch.Max()]
	}

	rows := s.multi.rows
	if s.multi.qtyPrompt != qtyPrompt {
		rows = nil
	}
	s.multi = multiState{enabled: true, qtyPrompt: qtyPrompt, qtyInputs: qtys, rows: rows}
	s.batchDirty = true
	s.scheduleLocked()
	return nil
}

// Recompute forces a recompute pass even for an untouched loaded item
func (s *Synchronizer) Recompute() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.editableLocked(); err != nil {
		return err
	}
	if s.productID == quote.CustomProductID {
		return nil
	}
	s.forced = true
	s.scheduleLocked()
	return nil
}

// SetDescription replaces the free-text item description
func (s *Synchronizer) SetDescription(desc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return err
	}
	s.description = desc
	s.offerLocked()
	return nil
}

// SetAdditionals replaces every manual price adjustment
func (s *Synchronizer) SetAdditionals(adds []quote.Additional) error {
	for _, a := range adds {
		if !a.Type.Valid() {
			return qerrors.Newf(qerrors.TypeInput, "unknown additional type %q", a.Type)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return err
	}
	s.additionals = append([]quote.Additional{}, adds...)
	s.offerLocked()
	return nil
}

// AddAdditional attaches one adjustment, assigning an id when it has none
func (s *Synchronizer) AddAdditional(a quote.Additional) (quote.Additional, error) {
	if !a.Type.Valid() {
		return a, qerrors.Newf(qerrors.TypeInput, "unknown additional type %q", a.Type)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.openLocked(); err != nil {
		return a, err
	}
	s.additionals = append(s.additionals, a)
	s.offerLocked()
	return a, nil
}

// RemoveAdditional detaches the adjustment with the given id. A finalized row
// keeps its adjustments.
func (s *Synchronizer) RemoveAdditional(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openLocked() != nil {
		return false
	}
	for i, a := range s.additionals {
		if a.ID == id {
			s.additionals = append(s.additionals[:i:i], s.additionals[i+1:]...)
			s.offerLocked()
			return true
		}
	}
	return false
}

// Finalize marks the row as done editing and tells the parent. Until Expand the
// row rejects every edit.
func (s *Synchronizer) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.finalized = true
	s.offerLocked()
	if s.deps.Parent != nil {
		s.deps.Parent.OnFinishEdit(s.id)
	}
}

// Expand reopens a finalized row for editing
func (s *Synchronizer) Expand() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.finalized {
		return
	}
	s.finalized = false
	s.offerLocked()
}

// Remove notifies the parent that the row is gone and closes the synchronizer
func (s *Synchronizer) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.deps.Parent != nil {
		s.deps.Parent.OnRemove(s.id)
	}
	s.closeLocked()
}

// Close stops the synchronizer; responses still in flight are discarded
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Synchronizer) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.debounce.Stop()
	s.cancel()
	s.settledSeq = s.scheduleSeq
	s.gen++
	s.batchGen++
	s.fetching = false
	s.batchFetching = false
	s.signalIdleLocked()
}

// Snapshot returns the current canonical snapshot
func (s *Synchronizer) Snapshot() quote.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildLocked()
}

// Status returns the current status
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Phase:          s.phase,
		Lifecycle:      s.lifecycle,
		ProductID:      s.productID,
		Fetching:       s.fetching || s.batchFetching,
		Err:            s.err,
		BatchErr:       s.batchErr,
		DroppedPrompts: append([]string(nil), s.dropped...),
	}
}

// WaitIdle blocks until no edit is waiting for the debounce window and no pricing
// call is in flight.
func (s *Synchronizer) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || !s.pendingLocked() {
		s.mu.Unlock()
		return nil
	}
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// signalIdleLocked wakes WaitIdle callers once nothing is pending
func (s *Synchronizer) signalIdleLocked() {
	if s.idle == nil || (!s.closed && s.pendingLocked()) {
		return
	}
	close(s.idle)
	s.idle = nil
}

// openLocked rejects edits to a closed or finalized row
func (s *Synchronizer) openLocked() error {
	if s.closed {
		return qerrors.Precondition("line item is closed")
	}
	if s.finalized {
		return qerrors.Precondition("line item is finalized")
	}
	return nil
}

func (s *Synchronizer) editableLocked() error {
	if err := s.openLocked(); err != nil {
		return err
	}
	if s.productID == "" {
		return qerrors.Precondition("no product selected")
	}
	return nil
}

// mirrorQuantityLocked copies the live quantity prompt value into the first slot
func (s *Synchronizer) mirrorQuantityLocked() {
	if !s.multi.active() {
		return
	}
	p, ok := s.fields.Get(s.multi.qtyPrompt)
	if !ok {
		return
	}
	if f, ok := quote.Number(p.Value); ok {
		s.multi.qtyInputs[0] = f
	}
}

func (s *Synchronizer) pendingLocked() bool {
	return s.scheduleSeq != s.settledSeq || s.fetching || s.batchFetching
}

func (s *Synchronizer) settlePhaseLocked() {
	s.signalIdleLocked()
	if s.phase == PhaseUninitialized || s.phase == PhaseInitializing {
		return
	}
	if s.pendingLocked() {
		s.phase = PhaseAwaitingRecompute
	} else {
		s.phase = PhaseReady
	}
}

func (s *Synchronizer) scheduleLocked() {
	s.scheduleSeq++
	s.phase = PhaseAwaitingRecompute
	s.debounce.Observe(pass{seq: s.scheduleSeq, params: s.fields.Snapshot()})
}

// onSettled runs on the debounce timer goroutine once edits have been quiet
func (s *Synchronizer) onSettled(p pass) {
	s.mu.Lock()
	if s.closed || p.seq <= s.settledSeq {
		s.mu.Unlock()
		return
	}
	s.settledSeq = p.seq
	pl, ok := s.planLocked(p)
	s.mu.Unlock()

	if ok {
		s.execute(pl)
	}
}

func (s *Synchronizer) planLocked(p pass) (plan, bool) {
	if s.productID == "" || s.productID == quote.CustomProductID {
		s.settlePhaseLocked()
		s.offerLocked()
		return plan{}, false
	}

	forced := s.forced
	s.forced = false
	shape := ClassifyRequest(s.lifecycle, len(p.params) > 0, s.initialPassDone, forced)
	runBatch := s.multi.active() && shape != ShapeDescribe && (shape != ShapeNone || s.batchDirty)

	if shape == ShapeNone && !runBatch {
		s.settlePhaseLocked()
		s.offerLocked()
		return plan{}, false
	}

	pl := plan{
		shape:     shape,
		productID: s.productID,
		params:    p.params,
	}
	if shape != ShapeNone {
		s.gen++
		pl.gen = s.gen
		s.fetching = true
		if s.lifecycle == LifecycleLoaded {
			s.initialPassDone = true
		}
	}
	if runBatch {
		s.batchDirty = false
		s.batchGen++
		pl.batchGen = s.batchGen
		s.batchFetching = true
		pl.runBatch = true
		pl.qtyPrompt = s.multi.qtyPrompt
		pl.quantities = append([]float64(nil), s.multi.qtyInputs...)
	}
	return pl, true
}

func (s *Synchronizer) execute(pl plan) {
	token, err := s.token()
	if err != nil {
		s.mu.Lock()
		if pl.shape != ShapeNone && pl.gen == s.gen {
			s.fetching = false
			s.err = err
		}
		s.abandonBatchLocked(pl, err)
		s.logger.Warn("pricing skipped", zap.Error(err))
		s.settlePhaseLocked()
		s.offerLocked()
		s.mu.Unlock()
		return
	}
	pl.token = token

	stale := pl.shape == ShapeRecompute && HasStaleIDs(pl.params)
	if pl.runBatch && !stale {
		go s.runBatch(pl, pl.params)
	}

	switch pl.shape {
	case ShapeDescribe:
		s.describe(pl)
	case ShapeRecompute:
		s.recompute(pl, pl.runBatch && stale)
	}
}

func (s *Synchronizer) token() (string, error) {
	if s.deps.Credentials == nil {
		return "", qerrors.Precondition("no session credential provider")
	}
	tok, err := s.deps.Credentials.Token(s.ctx)
	if err != nil {
		return "", qerrors.Wrap(qerrors.TypePrecondition, "session token unavailable", err)
	}
	if strings.TrimSpace(tok) == "" {
		return "", qerrors.Precondition("session token is missing")
	}
	return tok, nil
}

func (s *Synchronizer) requestContext() (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout > 0 {
		return context.WithTimeout(s.ctx, s.opts.RequestTimeout)
	}
	return context.WithCancel(s.ctx)
}

// describe fetches prompt definitions. A NEW item adopts the returned defaults,
// becomes EDITED and is recomputed with them within the same cycle.
func (s *Synchronizer) describe(pl plan) {
	ctx, cancel := s.requestContext()
	resp, err := s.deps.Pricing.Describe(ctx, quote.PricingRequest{ProductID: pl.productID, Token: pl.token})
	cancel()

	s.mu.Lock()
	if pl.gen != s.gen || s.closed {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded describe response", zap.Uint64("generation", pl.gen))
		return
	}
	if err != nil {
		s.failLocked(pl, err)
		s.mu.Unlock()
		return
	}

	s.err = nil
	s.fields.SetDefinitions(resp.Prompts)
	s.setOutputsLocked(resp.Outputs)

	confirmed := false
	if s.lifecycle.AcceptsRemoteDefaults() {
		for _, d := range resp.Prompts {
			if _, exists := s.fields.Get(d.ID); exists {
				continue
			}
			s.fields.Put(quote.Parameter{ID: d.ID, Label: d.Label, Value: d.CurrentValue, Order: d.Sequence})
		}
		if s.fields.Len() > 0 {
			s.lifecycle = LifecycleEdited
			confirmed = true
		}
	}

	// a newer edit already queued will recompute on its own
	if confirmed && s.scheduleSeq == s.settledSeq {
		pl.shape = ShapeRecompute
		pl.params = s.fields.Snapshot()
		s.mu.Unlock()
		s.recompute(pl, false)
		return
	}

	s.fetching = false
	s.settlePhaseLocked()
	s.offerLocked()
	s.mu.Unlock()
}

// recompute re-keys stale ids first when needed, then prices params. When
// batchAfterReconcile is set the batch waits for the corrected ids.
func (s *Synchronizer) recompute(pl plan, batchAfterReconcile bool) {
	ctx, cancel := s.requestContext()
	defer cancel()

	params := pl.params
	if HasStaleIDs(params) {
		rec, err := s.reconciler.Run(ctx, pl.productID, pl.token, params)

		s.mu.Lock()
		if pl.gen != s.gen || s.closed {
			s.abandonBatchLocked(pl, nil)
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.abandonBatchLocked(pl, err)
			s.failLocked(pl, err)
			s.mu.Unlock()
			return
		}
		s.fields.Remap(rec.Mapping, rec.Dropped)
		s.fields.SetDefinitions(rec.Definitions)
		s.dropped = append(s.dropped, rec.Dropped...)
		pl.qtyPrompt = s.remapMultiLocked(rec)
		batchAfterReconcile = batchAfterReconcile && pl.batchGen == s.batchGen
		s.mu.Unlock()

		params = rec.Params
	}
	if batchAfterReconcile {
		go s.runBatch(pl, params)
	}

	resp, err := s.deps.Pricing.Recompute(ctx, quote.PricingRequest{
		ProductID: pl.productID,
		Token:     pl.token,
		Inputs:    BuildInputs(params),
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if pl.gen != s.gen || s.closed {
		s.logger.Debug("discarding superseded recompute response", zap.Uint64("generation", pl.gen))
		return
	}
	if err != nil {
		s.failLocked(pl, err)
		return
	}
	s.err = nil
	s.fetching = false
	s.fields.SetDefinitions(resp.Prompts)
	s.setOutputsLocked(resp.Outputs)
	s.settlePhaseLocked()
	s.offerLocked()
}

// remapMultiLocked carries the quantity prompt through a reconciliation and returns
// its canonical id. A dropped quantity prompt turns multi-quantity pricing off.
func (s *Synchronizer) remapMultiLocked(rec Reconciliation) string {
	if !s.multi.enabled {
		return ""
	}
	if id, ok := rec.Mapping[s.multi.qtyPrompt]; ok {
		s.multi.qtyPrompt = id
		return id
	}
	for _, id := range rec.Dropped {
		if id != s.multi.qtyPrompt {
			continue
		}
		s.logger.Warn("quantity prompt dropped, multi-quantity pricing disabled", zap.String("prompt", id))
		s.multi = multiState{}
		s.batchGen++
		s.batchFetching = false
		s.batchDirty = false
		return ""
	}
	return s.multi.qtyPrompt
}

func (s *Synchronizer) runBatch(pl plan, params []quote.Parameter) {
	ctx, cancel := s.requestContext()
	defer cancel()

	rows, err := s.batch.Run(ctx, pl.productID, pl.token, params, pl.qtyPrompt, pl.quantities)

	s.mu.Lock()
	defer s.mu.Unlock()

	if pl.batchGen != s.batchGen || s.closed {
		return
	}
	s.batchFetching = false
	if err != nil {
		s.batchErr = err
		s.multi.rows = nil
	} else {
		s.batchErr = nil
		s.multi.rows = rows
	}
	s.settlePhaseLocked()
	s.offerLocked()
}

func (s *Synchronizer) abandonBatchLocked(pl plan, err error) {
	if !pl.runBatch || pl.batchGen != s.batchGen {
		return
	}
	s.batchFetching = false
	if err != nil {
		s.batchErr = err
		s.multi.rows = nil
	}
	s.signalIdleLocked()
}

func (s *Synchronizer) failLocked(pl plan, err error) {
	s.fetching = false
	s.err = err
	s.logger.Warn("pricing request failed",
		zap.String("shape", pl.shape.String()),
		zap.String("product", pl.productID),
		zap.Error(err))
	s.settlePhaseLocked()
	s.offerLocked()
}

func (s *Synchronizer) setOutputsLocked(outputs []quote.Output) {
	s.outputs = append([]quote.Output{}, outputs...)
	price, ok := quote.PriceOf(outputs)
	if !ok {
		price = decimal.Zero
	}
	s.price = price
}

func (s *Synchronizer) offerLocked() {
	if s.closed {
		return
	}
	res, err := s.emitter.Offer(s.buildLocked(), Guard{
		Initializing: s.initializing,
		Pending:      s.pendingLocked(),
	})
	if err != nil {
		s.logger.Error("failed to serialize snapshot", zap.Error(err))
		return
	}
	if res == Emitted {
		s.logger.Debug("snapshot emitted", zap.String("product", s.productID))
	}
}

func (s *Synchronizer) buildLocked() quote.Snapshot {
	snap := quote.Snapshot{
		ProductID:       s.productID,
		Outputs:         append([]quote.Output{}, s.outputs...),
		Price:           s.price,
		ItemDescription: s.description,
		ItemAdditionals: append([]quote.Additional{}, s.additionals...),
		IsFinalized:     s.finalized,
	}
	if snap.IsCustom() {
		snap.Prompts = quote.CustomParameters(s.customQty, s.customUnit)
		snap.Price = quote.CustomPrice(s.customQty, s.customUnit)
	} else {
		snap.Prompts = s.fields.Snapshot()
	}
	if s.multi.enabled {
		snap.Multi = &quote.MultiQuantity{
			QtyPrompt: s.multi.qtyPrompt,
			QtyInputs: append([]float64{}, s.multi.qtyInputs...),
			Rows:      append([]quote.BatchRow{}, s.multi.rows...),
		}
	}
	return snap
}
