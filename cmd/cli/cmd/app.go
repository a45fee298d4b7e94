package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"easyquote/adapters/pricing"
	"easyquote/adapters/session"
	"easyquote/adapters/storage"
	"easyquote/core/editor"
	"easyquote/core/lineitem"
	"easyquote/core/quote"
	"easyquote/internal/config"
	"easyquote/internal/logging"
)

// app wires the pricing client, session, storage and quote editor for one command
type app struct {
	cfg         *config.Config
	session     *session.Static
	invalidator *session.Invalidator
	client      *pricing.Client
	engine      pricing.Engine
	store       storage.Store
	editor      *editor.Editor
	products    []quote.Product
	logger      *zap.Logger
}

// newApp builds the collaborators. A non-empty quoteID also opens an editor for that quote.
func newApp(ctx context.Context, quoteID string) (*app, error) {
	cfg := config.Get()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.Logger
	if quoteID != "" {
		logger = logging.With(zap.String("quote", quoteID))
	}

	a := &app{
		cfg:         cfg,
		session:     session.NewStatic(cfg.Pricing.Token),
		invalidator: &session.Invalidator{},
		logger:      logger,
	}
	a.invalidator.Subscribe(func(err error) {
		logger.Warn("Pricing API rejected the session token", zap.Error(err))
		a.session.Clear()
	})

	ccfg := pricing.ClientConfigFrom(cfg.Pricing)
	ccfg.Credentials = a.session
	ccfg.OnUnauthorized = a.invalidator.Notify
	ccfg.Logger = logger
	client, err := pricing.NewClient(ccfg)
	if err != nil {
		return nil, err
	}
	a.client = client
	a.engine = pricing.Wrap(client, cfg.Pricing.DescribeCacheSize, cfg.Pricing.DescribeCacheTTL())

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.store = store
	if quoteID != "" {
		a.editor = a.newEditor(quoteID)
	}
	return a, nil
}

// loadProducts fetches the active catalog used for item descriptions. A failure is
// logged and leaves descriptions empty.
func (a *app) loadProducts(ctx context.Context) {
	products, err := a.client.ListActiveProducts(ctx)
	if err != nil {
		a.logger.Warn("Product catalog unavailable", zap.Error(err))
		return
	}
	a.products = products
}

func (a *app) newEditor(quoteID string) *editor.Editor {
	return editor.New(editor.Options{QuoteID: quoteID, Store: a.store, Logger: a.logger})
}

func (a *app) newItem(itemID string, parent lineitem.Parent) *lineitem.Synchronizer {
	return lineitem.New(itemID, lineitem.Dependencies{
		Pricing:     a.engine,
		Credentials: a.session,
		Parent:      parent,
	}, lineitem.Options{
		Quiescence:     a.cfg.Sync.Quiescence(),
		MaxQuantities:  a.cfg.Sync.MaxQuantities,
		RequestTimeout: a.cfg.Pricing.Timeout(),
		Products:       a.products,
		Logger:         a.logger,
	})
}

// settle waits for an item to finish every pending pass and reports its primary error
func (a *app) settle(ctx context.Context, item *lineitem.Synchronizer) error {
	wctx, cancel := context.WithTimeout(ctx, a.cfg.Pricing.Timeout()+a.cfg.Sync.Quiescence()+5*time.Second)
	defer cancel()
	if err := item.WaitIdle(wctx); err != nil {
		return fmt.Errorf("line item did not settle: %w", err)
	}
	return item.Status().Err
}

func (a *app) Close(ctx context.Context) {
	if a.editor != nil {
		if err := a.editor.Flush(ctx); err != nil {
			a.logger.Warn("Pending line item writes not flushed", zap.Error(err))
		}
		if err := a.editor.Close(); err != nil {
			a.logger.Warn("Line item persistence failed", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", zap.Error(err))
	}
}
