package storage

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	qerrors "easyquote/internal/errors"
)

// RedisStore keeps each quote as one hash: field = item id, value = JSON item
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr and checks the connection
func NewRedisStore(ctx context.Context, addr string, db int) (*RedisStore, error) {
	if addr == "" {
		return nil, qerrors.New(qerrors.TypeConfig, "redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, qerrors.Storage("failed to reach redis", err)
	}
	return NewRedisStoreFromClient(client), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func quoteKey(quoteID string) string {
	return "easyquote:quote:" + quoteID + ":items"
}

func (s *RedisStore) SaveItem(ctx context.Context, item StoredItem) error {
	if item.QuoteID == "" || item.ItemID == "" {
		return qerrors.Input("quote id and item id are required")
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(item)
	if err != nil {
		return qerrors.Internal("failed to encode line item", err)
	}
	if err := s.client.HSet(ctx, quoteKey(item.QuoteID), item.ItemID, data).Err(); err != nil {
		return qerrors.Storage("failed to save line item", err).WithContext("item", item.ItemID)
	}
	return nil
}

func (s *RedisStore) DeleteItem(ctx context.Context, quoteID, itemID string) error {
	if err := s.client.HDel(ctx, quoteKey(quoteID), itemID).Err(); err != nil {
		return qerrors.Storage("failed to delete line item", err).WithContext("item", itemID)
	}
	return nil
}

func (s *RedisStore) ListItems(ctx context.Context, quoteID string) ([]StoredItem, error) {
	fields, err := s.client.HGetAll(ctx, quoteKey(quoteID)).Result()
	if err != nil {
		return nil, qerrors.Storage("failed to list line items", err)
	}

	items := make([]StoredItem, 0, len(fields))
	for itemID, raw := range fields {
		var item StoredItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, qerrors.Parsing("corrupt line item "+itemID, err)
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
