// Package admin holds the operator tasks behind catalogctl: emptying the
// store, seeding sample products, and dry-running a catalog file.
package admin

import (
	"context"
	"time"
)

// ResetTimeout is the maximum duration for a reset.
const ResetTimeout = 30 * time.Second

// Resetter empties one store.
type Resetter interface {
	Reset(ctx context.Context) error
}

// ResetAll empties every resetter in order, stopping at the first error.
func ResetAll(ctx context.Context, resetters ...Resetter) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	for _, r := range resetters {
		if err := r.Reset(ctx); err != nil {
			return err
		}
	}
	return nil
}
