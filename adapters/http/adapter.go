// Package http exposes quote line items over a JSON API.
// Each quote gets its own editor; each line item is driven by its own synchronizer.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"easyquote/core/editor"
	"easyquote/core/lineitem"
	"easyquote/core/quote"
	qerrors "easyquote/internal/errors"
	"easyquote/internal/logging"
)

// Config holds HTTP adapter configuration
type Config struct {
	// Address to listen on
	Address string `json:"address"`

	// ReadTimeout for requests
	ReadTimeout time.Duration `json:"read_timeout"`

	// WriteTimeout for responses
	WriteTimeout time.Duration `json:"write_timeout"`

	// MaxBodySize limits request body size
	MaxBodySize int64 `json:"max_body_size"`

	// EnableCORS enables CORS headers
	EnableCORS bool `json:"enable_cors"`

	// AllowedOrigins for CORS
	AllowedOrigins []string `json:"allowed_origins"`

	// EnableMetrics serves /metrics from the default Prometheus registry
	EnableMetrics bool `json:"enable_metrics"`

	// WaitTimeout bounds ?wait=true reads
	WaitTimeout time.Duration `json:"wait_timeout"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Address:        ":8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxBodySize:    1 << 20,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		EnableMetrics:  true,
		WaitTimeout:    30 * time.Second,
	}
}

// EditorFactory opens the editor of a quote
type EditorFactory func(quoteID string) *editor.Editor

// ItemFactory creates the synchronizer of one line item reporting to parent
type ItemFactory func(itemID string, parent lineitem.Parent) *lineitem.Synchronizer

type quoteState struct {
	editor *editor.Editor
	items  map[string]*lineitem.Synchronizer
}

// Adapter is the HTTP adapter
type Adapter struct {
	config    *Config
	newEditor EditorFactory
	newItem   ItemFactory
	logger    *zap.Logger
	server    *http.Server

	mu     sync.Mutex
	quotes map[string]*quoteState
}

// New creates a new HTTP adapter
func New(newEditor EditorFactory, newItem ItemFactory, config *Config, logger *zap.Logger) *Adapter {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 30 * time.Second
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 1 << 20
	}
	return &Adapter{
		config:    config,
		newEditor: newEditor,
		newItem:   newItem,
		logger:    logging.Or(logger).With(zap.String("component", "http")),
		quotes:    make(map[string]*quoteState),
	}
}

// Router returns the HTTP handler
func (a *Adapter) Router() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("GET /health", a.handleHealth)

	// API v1 endpoints
	mux.HandleFunc("POST /api/v1/quotes/{quote}/items", a.handleCreateItem)
	mux.HandleFunc("GET /api/v1/quotes/{quote}/items/{item}", a.handleGetItem)
	mux.HandleFunc("DELETE /api/v1/quotes/{quote}/items/{item}", a.handleRemoveItem)
	mux.HandleFunc("PUT /api/v1/quotes/{quote}/items/{item}/product", a.handleSelectProduct)
	mux.HandleFunc("PATCH /api/v1/quotes/{quote}/items/{item}/fields", a.handleSetFields)
	mux.HandleFunc("PUT /api/v1/quotes/{quote}/items/{item}/multi", a.handleSetMulti)
	mux.HandleFunc("PUT /api/v1/quotes/{quote}/items/{item}/details", a.handleSetDetails)
	mux.HandleFunc("POST /api/v1/quotes/{quote}/items/{item}/finalize", a.handleFinalize)
	mux.HandleFunc("POST /api/v1/quotes/{quote}/items/{item}/expand", a.handleExpand)
	mux.HandleFunc("GET /api/v1/quotes/{quote}/totals", a.handleTotals)

	// Metrics
	if a.config.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Apply middleware
	handler := a.corsMiddleware(mux)
	handler = a.loggingMiddleware(handler)
	handler = a.recoveryMiddleware(handler)

	return handler
}

// Start starts the HTTP server
func (a *Adapter) Start() error {
	a.server = &http.Server{
		Addr:         a.config.Address,
		Handler:      a.Router(),
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
	}

	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, then closes every line item and flushes every editor
func (a *Adapter) Shutdown(ctx context.Context) error {
	var err error
	if a.server != nil {
		err = a.server.Shutdown(ctx)
	}

	a.mu.Lock()
	quotes := a.quotes
	a.quotes = make(map[string]*quoteState)
	a.mu.Unlock()

	for id, q := range quotes {
		for _, item := range q.items {
			item.Close()
		}
		if ferr := q.editor.Flush(ctx); ferr != nil {
			a.logger.Warn("Quote writes not flushed", zap.String("quote", id), zap.Error(ferr))
		}
		if cerr := q.editor.Close(); cerr != nil {
			a.logger.Warn("Quote persistence failed", zap.String("quote", id), zap.Error(cerr))
		}
	}
	return err
}

// CreateItemRequest adds a line item. Snapshot, when given, is a saved line item to mount;
// otherwise ProductID, when given, is selected on the new item.
type CreateItemRequest struct {
	ItemID    string          `json:"itemId,omitempty"`
	ProductID string          `json:"productId,omitempty"`
	Snapshot  json.RawMessage `json:"snapshot,omitempty"`
}

// ProductRequest switches the product of an item
type ProductRequest struct {
	ProductID string `json:"productId"`
}

// FieldUpdate is one prompt edit
type FieldUpdate struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
	Label string `json:"label,omitempty"`
}

// MultiRequest configures multi-quantity pricing
type MultiRequest struct {
	Enabled    bool      `json:"enabled"`
	QtyPrompt  string    `json:"qtyPrompt"`
	Quantities []float64 `json:"quantities"`
}

// DetailsRequest replaces user-owned item details; nil fields are left unchanged
type DetailsRequest struct {
	Description *string             `json:"description,omitempty"`
	Additionals *[]quote.Additional `json:"additionals,omitempty"`
}

// ItemResponse is the API view of a line item
type ItemResponse struct {
	QuoteID  string         `json:"quoteId"`
	ItemID   string         `json:"itemId"`
	Snapshot quote.Snapshot `json:"snapshot"`
	Status   StatusResponse `json:"status"`
}

// StatusResponse is the API view of a synchronizer status
type StatusResponse struct {
	Phase          string   `json:"phase"`
	Lifecycle      string   `json:"lifecycle"`
	Fetching       bool     `json:"fetching"`
	Error          string   `json:"error,omitempty"`
	BatchError     string   `json:"batchError,omitempty"`
	DroppedPrompts []string `json:"droppedPrompts,omitempty"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Type    string `json:"type,omitempty"`
}

// Handlers

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (a *Adapter) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	quoteID := r.PathValue("quote")

	var req CreateItemRequest
	if err := a.parseJSON(r, &req); err != nil {
		a.writeError(w, qerrors.Parsing("invalid request body", err))
		return
	}
	if req.ItemID == "" {
		req.ItemID = uuid.NewString()
	}

	a.mu.Lock()
	q := a.quoteLocked(quoteID)
	if _, exists := q.items[req.ItemID]; exists {
		a.mu.Unlock()
		a.writeError(w, qerrors.Newf(qerrors.TypePrecondition, "line item %s already exists", req.ItemID))
		return
	}
	item := a.newItem(req.ItemID, q.editor)
	q.items[req.ItemID] = item
	a.mu.Unlock()

	if err := item.Mount(req.Snapshot); err != nil {
		a.dropItem(quoteID, req.ItemID)
		item.Close()
		a.writeError(w, err)
		return
	}
	if len(req.Snapshot) == 0 && req.ProductID != "" {
		if err := item.SelectProduct(req.ProductID); err != nil {
			a.dropItem(quoteID, req.ItemID)
			item.Close()
			a.writeError(w, err)
			return
		}
	}
	a.writeItem(w, r, http.StatusCreated, quoteID, item)
}

func (a *Adapter) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, ok := a.item(w, r)
	if !ok {
		return
	}
	a.writeItem(w, r, http.StatusOK, r.PathValue("quote"), item)
}

func (a *Adapter) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	item, ok := a.item(w, r)
	if !ok {
		return
	}
	a.dropItem(r.PathValue("quote"), item.ID())
	item.Remove()
	w.WriteHeader(http.StatusNoContent)
}

func (a *Adapter) handleSelectProduct(w http.ResponseWriter, r *http.Request) {
	item, ok := a.item(w, r)
	if !ok {
		return
	}
	var req ProductRequest
	if err := a.parseJSON(r, &req); err != nil {
		a.writeError(w, qerrors.Parsing("invalid request body", err))
		return
	}
	if err := item.SelectProduct(req.ProductID); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeItem(w, r, http.StatusOK, r.PathValue("quote"), item)
}

func (a *Adapter) handleSetFields(w http.ResponseWriter, r *http.Request) {
	item, ok := a.item(w, r)
	if !ok {
		return
	}
	var updates []FieldUpdate
	if err := a.parseJSON(r, &updates); err != nil {
		a.writeError(w, qerrors.Parsing("invalid request body", err))
		return
	}
	for _, u := range updates {
		if u.ID == "" {
			a.writeError(w, qerrors.Input("field id is required"))
			return
		}
		if err := item.SetField(u.ID, u.Value, u.Label); err != nil {
			a.writeError(w, err)
			return
		}
	}
	a.writeItem(w, r, http.StatusOK, r.PathValue("quote"), item)
}

func (a *Adapter) handleSetMulti(w http.ResponseWriter, r *http.Request) {
	item, ok := a.item(w, r)
	if !ok {
		return
	}
	var req MultiRequest
	if err := a.parseJSON(r, &req); err != nil {
		a.writeError(w, qerrors.Parsing("invalid request body", err))
		return
	}
	if err := item.SetMultiQuantity(req.Enabled, req.QtyPrompt, req.Quantities); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeItem(w, r, http.StatusOK, r.PathValue("quote"), item)
}

func (a *Adapter) handleSetDetails(w http.ResponseWriter, r *http.Request) {
	item, ok := a.item(w, r)
	if !ok {
		return
	}
	var req DetailsRequest
	if err := a.parseJSON(r, &req); err != nil {
		a.writeError(w, qerrors.Parsing("invalid request body", err))
		return
	}
	if req.Description != nil {
		if err := item.SetDescription(*req.Description); err != nil {
			a.writeError(w, err)
			return
		}
	}
	if req.Additionals != nil {
		if err := item.SetAdditionals(*req.Additionals); err != nil {
			a.writeError(w, err)
			return
		}
	}
	a.writeItem(w, r, http.StatusOK, r.PathValue("quote"), item)
}

func (a *Adapter) handleFinalize(w http.ResponseWriter, r *http.Request) {
	item, ok := a.item(w, r)
	if !ok {
		return
	}
	item.Finalize()
	a.writeItem(w, r, http.StatusOK, r.PathValue("quote"), item)
}

func (a *Adapter) handleExpand(w http.ResponseWriter, r *http.Request) {
	item, ok := a.item(w, r)
	if !ok {
		return
	}
	item.Expand()
	a.writeItem(w, r, http.StatusOK, r.PathValue("quote"), item)
}

func (a *Adapter) handleTotals(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	q, ok := a.quotes[r.PathValue("quote")]
	a.mu.Unlock()
	if !ok {
		a.writeError(w, qerrors.NotFound("quote", r.PathValue("quote")))
		return
	}
	a.writeJSON(w, http.StatusOK, q.editor.Totals())
}

// Quote and item registry

func (a *Adapter) quoteLocked(quoteID string) *quoteState {
	q, ok := a.quotes[quoteID]
	if !ok {
		q = &quoteState{editor: a.newEditor(quoteID), items: make(map[string]*lineitem.Synchronizer)}
		a.quotes[quoteID] = q
	}
	return q
}

func (a *Adapter) item(w http.ResponseWriter, r *http.Request) (*lineitem.Synchronizer, bool) {
	quoteID, itemID := r.PathValue("quote"), r.PathValue("item")

	a.mu.Lock()
	var item *lineitem.Synchronizer
	if q, ok := a.quotes[quoteID]; ok {
		item = q.items[itemID]
	}
	a.mu.Unlock()

	if item == nil {
		a.writeError(w, qerrors.NotFound("line item", itemID))
		return nil, false
	}
	return item, true
}

func (a *Adapter) dropItem(quoteID, itemID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if q, ok := a.quotes[quoteID]; ok {
		delete(q.items, itemID)
	}
}

// Middleware

func (a *Adapter) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.config.EnableCORS {
			origin := "*"
			if len(a.config.AllowedOrigins) > 0 && a.config.AllowedOrigins[0] != "*" {
				origin = a.config.AllowedOrigins[0]
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *Adapter) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		a.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (a *Adapter) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				a.logger.Error("Handler panicked", zap.Any("panic", err), zap.String("path", r.URL.Path))
				a.writeError(w, qerrors.New(qerrors.TypeInternal, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Helpers

func (a *Adapter) parseJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, a.config.MaxBodySize))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

// writeItem renders an item. With ?wait=true it first waits for pending pricing to settle.
func (a *Adapter) writeItem(w http.ResponseWriter, r *http.Request, status int, quoteID string, item *lineitem.Synchronizer) {
	if r.URL.Query().Get("wait") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), a.config.WaitTimeout)
		defer cancel()
		if err := item.WaitIdle(ctx); err != nil {
			a.writeError(w, qerrors.Wrap(qerrors.TypeNetwork, "line item did not settle", err))
			return
		}
	}

	st := item.Status()
	resp := ItemResponse{
		QuoteID:  quoteID,
		ItemID:   item.ID(),
		Snapshot: item.Snapshot(),
		Status: StatusResponse{
			Phase:          st.Phase.String(),
			Lifecycle:      st.Lifecycle.String(),
			Fetching:       st.Fetching,
			DroppedPrompts: st.DroppedPrompts,
		},
	}
	if st.Err != nil {
		resp.Status.Error = st.Err.Error()
	}
	if st.BatchErr != nil {
		resp.Status.BatchError = st.BatchErr.Error()
	}
	a.writeJSON(w, status, resp)
}

func (a *Adapter) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (a *Adapter) writeError(w http.ResponseWriter, err error) {
	t := qerrors.TypeOf(err)
	a.writeJSON(w, statusFor(t), ErrorResponse{
		Success: false,
		Error:   err.Error(),
		Type:    string(t),
	})
}

func statusFor(t qerrors.Type) int {
	switch t {
	case qerrors.TypeInput, qerrors.TypeParsing:
		return http.StatusBadRequest
	case qerrors.TypeNotFound:
		return http.StatusNotFound
	case qerrors.TypePrecondition:
		return http.StatusConflict
	case qerrors.TypeUnauthorized:
		return http.StatusUnauthorized
	case qerrors.TypeNetwork:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
