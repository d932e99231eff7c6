package postgres

import (
	"context"
	"fmt"
)

// EnsureSchema creates the two tables when they are missing. It never alters
// existing tables.
func (st *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       DOUBLE PRECISION NOT NULL CHECK (price > 0)
)`, st.products),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	product_id TEXT PRIMARY KEY REFERENCES %s (id) ON DELETE CASCADE,
	count      INTEGER NOT NULL CHECK (count >= 0)
)`, st.stocks, st.products),
	}
	for _, stmt := range stmts {
		if _, err := st.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
