package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/catalogimport/internal/admin"
	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/commit"
	"github.com/JonMunkholm/catalogimport/internal/config"
	"github.com/JonMunkholm/catalogimport/internal/storage/postgres"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert the sample products and stocks",
		Long: `Commit the sample catalog through the same coordinator the worker
uses. Seeding does not publish product notifications.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reset, _ := cmd.Flags().GetBool("reset")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer closeStore()

			if reset {
				if err := admin.ResetAll(ctx, store); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "tables cleared")
			}

			coordinator := commit.New(store, nil, nil, slog.Default())
			recs := admin.SampleRecords(
				func() string { return uuid.New().String() },
				func() int { return rand.IntN(100) + 1 },
			)
			rep := admin.Seed(ctx, coordinator, recs, func(rec catalog.Record, o commit.Outcome) {
				fmt.Fprintf(cmd.OutOrStdout(), "%-17s %s %s (count %d)\n", o, rec.ID, rec.Title, rec.Count)
			})

			fmt.Fprintf(cmd.OutOrStdout(), "seeded: %d committed, %d skipped, %d failed\n",
				rep.Committed, rep.Skipped, rep.Failed)
			if rep.Failed > 0 {
				return fmt.Errorf("%d records failed to commit", rep.Failed)
			}
			return nil
		},
	}

	cmd.Flags().Bool("reset", false, "Empty the products and stocks tables first")
	return cmd
}

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Empty the products and stocks tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("reset deletes every product; pass --yes to confirm")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := admin.ResetAll(cmd.Context(), store); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tables cleared")
			return nil
		},
	}

	cmd.Flags().Bool("yes", false, "Confirm the reset")
	return cmd
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (*postgres.Store, func(), error) {
	pool, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store := postgres.New(pool, cfg.ProductsTable, cfg.StocksTable)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}
