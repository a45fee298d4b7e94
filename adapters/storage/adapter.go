// Package storage persists quote line items for the quote editor.
// Supports multiple backends: memory, PostgreSQL, Redis.
package storage

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"easyquote/core/quote"
	"easyquote/internal/config"
	qerrors "easyquote/internal/errors"
)

// Backend is a storage backend type
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// Store is the storage interface
type Store interface {
	// SaveItem inserts or replaces one line item
	SaveItem(ctx context.Context, item StoredItem) error

	// DeleteItem removes one line item; removing a missing item is not an error
	DeleteItem(ctx context.Context, quoteID, itemID string) error

	// ListItems returns the items of a quote ordered by item id
	ListItems(ctx context.Context, quoteID string) ([]StoredItem, error)

	// Close closes the store
	Close() error
}

// StoredItem is one persisted line item
type StoredItem = quote.Record

// AdditionalsCatalog is the read-only list of predefined price adjustments
type AdditionalsCatalog interface {
	ListAdditionals(ctx context.Context) ([]quote.Additional, error)
	Close() error
}

// MemoryStore is an in-memory storage backend
type MemoryStore struct {
	items map[string]map[string]StoredItem
	mu    sync.RWMutex
}

// NewMemoryStore creates a memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]map[string]StoredItem),
	}
}

func (s *MemoryStore) SaveItem(ctx context.Context, item StoredItem) error {
	if item.QuoteID == "" || item.ItemID == "" {
		return qerrors.Input("quote id and item id are required")
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now()
	}
	item.Data = append(json.RawMessage(nil), item.Data...)

	s.mu.Lock()
	defer s.mu.Unlock()

	byItem, ok := s.items[item.QuoteID]
	if !ok {
		byItem = make(map[string]StoredItem)
		s.items[item.QuoteID] = byItem
	}
	byItem[item.ItemID] = item
	return nil
}

func (s *MemoryStore) DeleteItem(ctx context.Context, quoteID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items[quoteID], itemID)
	return nil
}

func (s *MemoryStore) ListItems(ctx context.Context, quoteID string) ([]StoredItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]StoredItem, 0, len(s.items[quoteID]))
	for _, item := range s.items[quoteID] {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// MemoryAdditionals is an in-memory additionals catalog
type MemoryAdditionals struct {
	adds []quote.Additional
}

// NewMemoryAdditionals creates a catalog holding adds
func NewMemoryAdditionals(adds ...quote.Additional) *MemoryAdditionals {
	return &MemoryAdditionals{adds: append([]quote.Additional{}, adds...)}
}

func (c *MemoryAdditionals) ListAdditionals(ctx context.Context) ([]quote.Additional, error) {
	return append([]quote.Additional{}, c.adds...), nil
}

func (c *MemoryAdditionals) Close() error {
	return nil
}

// Open creates the store selected by cfg.Backend
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch Backend(cfg.Backend) {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB)
	default:
		return nil, qerrors.Newf(qerrors.TypeConfig, "unsupported storage backend: %s", cfg.Backend)
	}
}

// OpenAdditionals creates the additionals catalog for cfg. Only the Postgres backend
// stores a catalog; the others serve an empty one.
func OpenAdditionals(ctx context.Context, cfg config.StorageConfig) (AdditionalsCatalog, error) {
	if Backend(cfg.Backend) == BackendPostgres {
		return NewPostgresAdditionals(ctx, cfg.DatabaseURL)
	}
	return NewMemoryAdditionals(), nil
}

// Ensure interfaces are implemented
var _ Store = (*MemoryStore)(nil)
var _ io.Closer = (*MemoryAdditionals)(nil)
