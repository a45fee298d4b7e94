package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"easyquote/core/quote"
	qerrors "easyquote/internal/errors"
)

const quoteItemsSchema = `
CREATE TABLE IF NOT EXISTS quote_items (
	quote_id   TEXT        NOT NULL,
	item_id    TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (quote_id, item_id)
)`

const additionalsSchema = `
CREATE TABLE IF NOT EXISTS additionals (
	id    TEXT    PRIMARY KEY,
	name  TEXT    NOT NULL,
	type  TEXT    NOT NULL,
	value NUMERIC NOT NULL
)`

func openPostgres(ctx context.Context, dsn string, schema string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, qerrors.New(qerrors.TypeConfig, "postgres DSN is required")
	}
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, qerrors.Storage("failed to open postgres", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, qerrors.Storage("failed to reach postgres", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, qerrors.Storage("failed to ensure schema", err)
	}
	return db, nil
}

// PostgresStore keeps line items in the quote_items table as JSONB
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to dsn and ensures the schema exists
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := openPostgres(ctx, dsn, quoteItemsSchema)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveItem(ctx context.Context, item StoredItem) error {
	if item.QuoteID == "" || item.ItemID == "" {
		return qerrors.Input("quote id and item id are required")
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quote_items (quote_id, item_id, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (quote_id, item_id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		item.QuoteID, item.ItemID, string(item.Data), item.UpdatedAt)
	if err != nil {
		return qerrors.Storage("failed to save line item", err).WithContext("item", item.ItemID)
	}
	return nil
}

func (s *PostgresStore) DeleteItem(ctx context.Context, quoteID, itemID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM quote_items WHERE quote_id = $1 AND item_id = $2`, quoteID, itemID); err != nil {
		return qerrors.Storage("failed to delete line item", err).WithContext("item", itemID)
	}
	return nil
}

func (s *PostgresStore) ListItems(ctx context.Context, quoteID string) ([]StoredItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, data, updated_at
		FROM quote_items
		WHERE quote_id = $1
		ORDER BY item_id`, quoteID)
	if err != nil {
		return nil, qerrors.Storage("failed to list line items", err)
	}
	defer rows.Close()

	var items []StoredItem
	for rows.Next() {
		item := StoredItem{QuoteID: quoteID}
		var data []byte
		if err := rows.Scan(&item.ItemID, &data, &item.UpdatedAt); err != nil {
			return nil, qerrors.Storage("failed to scan line item", err)
		}
		item.Data = data
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.Storage("failed to list line items", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// PostgresAdditionals reads the additionals table
type PostgresAdditionals struct {
	db *sql.DB
}

// NewPostgresAdditionals connects to dsn and ensures the additionals table exists
func NewPostgresAdditionals(ctx context.Context, dsn string) (*PostgresAdditionals, error) {
	db, err := openPostgres(ctx, dsn, additionalsSchema)
	if err != nil {
		return nil, err
	}
	return &PostgresAdditionals{db: db}, nil
}

func (c *PostgresAdditionals) ListAdditionals(ctx context.Context) ([]quote.Additional, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, type, value FROM additionals ORDER BY name`)
	if err != nil {
		return nil, qerrors.Storage("failed to list additionals", err)
	}
	defer rows.Close()

	var adds []quote.Additional
	for rows.Next() {
		var a quote.Additional
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Value); err != nil {
			return nil, qerrors.Storage("failed to scan additional", err)
		}
		if !a.Type.Valid() {
			continue
		}
		adds = append(adds, a)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.Storage("failed to list additionals", err)
	}
	return adds, nil
}

func (c *PostgresAdditionals) Close() error {
	return c.db.Close()
}

var _ Store = (*PostgresStore)(nil)
var _ AdditionalsCatalog = (*PostgresAdditionals)(nil)
