// Package postgres persists products and stocks.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/config"
)

var (
	// ErrDuplicate means a product or stock row with the same key already
	// exists; nothing was written.
	ErrDuplicate = errors.New("record already exists")

	ErrNotFound = errors.New("product not found")
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Conn is a DBTX that can also open transactions. *pgxpool.Pool satisfies it.
type Conn interface {
	DBTX
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
}

// Open creates a connection pool and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pc.MaxConns = int32(cfg.MaxConns)
	pc.MinConns = int32(cfg.MinConns)
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Store reads and writes the products and stocks tables.
type Store struct {
	db       Conn
	products string
	stocks   string
}

// New returns a Store over the two named tables.
func New(db Conn, productsTable, stocksTable string) *Store {
	return &Store{
		db:       db,
		products: quoteIdentifier(productsTable),
		stocks:   quoteIdentifier(stocksTable),
	}
}

// InsertPair writes p and s in one transaction. Each insert is conditional
// on the key being absent; if either is suppressed the transaction is rolled
// back and ErrDuplicate returned, so a stock row never exists without its
// product.
func (st *Store) InsertPair(ctx context.Context, p catalog.Product, s catalog.Stock) error {
	tx, err := st.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	tag, err := tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (id, title, description, price) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING",
		st.products,
	), p.ID, p.Title, p.Description, p.Price)
	if err != nil {
		return fmt.Errorf("insert product %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", p.ID, ErrDuplicate)
	}

	tag, err = tx.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (product_id, count) VALUES ($1, $2) ON CONFLICT (product_id) DO NOTHING",
		st.stocks,
	), s.ProductID, s.Count)
	if err != nil {
		return fmt.Errorf("insert stock %s: %w", s.ProductID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock %s: %w", s.ProductID, ErrDuplicate)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (st *Store) selectJoined() string {
	return fmt.Sprintf(
		"SELECT p.id, p.title, p.description, p.price, COALESCE(s.count, 0) FROM %s p LEFT JOIN %s s ON s.product_id = p.id",
		st.products, st.stocks,
	)
}

// Get returns the product with its stock count; a missing stock row reads as
// count 0.
func (st *Store) Get(ctx context.Context, id string) (catalog.Record, error) {
	rows, err := st.db.Query(ctx, st.selectJoined()+" WHERE p.id = $1", id)
	if err != nil {
		return catalog.Record{}, fmt.Errorf("get product %s: %w", id, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[catalog.Record])
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Record{}, ErrNotFound
	}
	if err != nil {
		return catalog.Record{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return rec, nil
}

// List returns every product joined with its stock count, ordered by id.
func (st *Store) List(ctx context.Context) ([]catalog.Record, error) {
	rows, err := st.db.Query(ctx, st.selectJoined()+" ORDER BY p.id")
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[catalog.Record])
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return recs, nil
}

// Ping checks connectivity.
func (st *Store) Ping(ctx context.Context) error {
	return st.db.Ping(ctx)
}

// quoteIdentifier safely quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Reset empties both tables.
func (st *Store) Reset(ctx context.Context) error {
	if _, err := st.db.Exec(ctx, fmt.Sprintf("TRUNCATE %s, %s", st.stocks, st.products)); err != nil {
		return fmt.Errorf("reset tables: %w", err)
	}
	return nil
}
