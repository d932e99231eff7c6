package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/catalogimport/internal/storage/objects"
)

func presignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presign [name]",
		Short: "Print a presigned upload URL for uploaded/<name>",
		Long: `Print the same URL GET /import hands out. Upload with:

  curl -X PUT -H 'Content-Type: text/csv' --upload-file products.csv "$(catalogctl presign products.csv)"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			bucket, err := objects.New(cfg.Storage)
			if err != nil {
				return err
			}
			key := cfg.Storage.UploadPrefix + args[0]
			if err := warnIfPending(cmd.Context(), bucket, key); err != nil {
				return err
			}
			u, err := bucket.PresignPut(cmd.Context(), key, cfg.Storage.PresignExpiry, "text/csv")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u.String())
			return nil
		},
	}
}

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload [file]",
		Short: "Put a local file into uploaded/ to start an import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			bucket, err := objects.New(cfg.Storage)
			if err != nil {
				return err
			}
			key := cfg.Storage.UploadPrefix + filepath.Base(args[0])
			if err := warnIfPending(cmd.Context(), bucket, key); err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return err
			}
			if err := bucket.Put(cmd.Context(), key, f, st.Size(), "text/csv"); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func warnIfPending(ctx context.Context, bucket *objects.Bucket, key string) error {
	pending, err := bucket.Exists(ctx, key)
	if err != nil {
		return err
	}
	if pending {
		slog.Warn("an upload with this name is still waiting to be imported; uploading again replaces it", "key", key)
	}
	return nil
}
