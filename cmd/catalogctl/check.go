package main

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/catalogimport/internal/admin"
	"github.com/JonMunkholm/catalogimport/internal/batch"
	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/parser"
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Dry-run a catalog file through parsing and validation",
		Long: `Parse and validate a local file exactly as the importer would,
without touching the bucket, the queue or the database.

Exits non-zero when the file would be left in uploaded/ (a malformed row).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delim, _ := cmd.Flags().GetString("delimiter")
			quote, _ := cmd.Flags().GetString("quote")
			size, _ := cmd.Flags().GetInt("batch-size")
			records, _ := cmd.Flags().GetBool("records")

			cfg, err := dialect(delim, quote)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			version, err := fileETag(f)
			if err != nil {
				return err
			}
			return runCheck(cmd.OutOrStdout(), f, "uploaded/"+filepath.Base(args[0]), version, cfg, size, records)
		},
	}

	cmd.Flags().StringP("delimiter", "d", ";", "Column delimiter")
	cmd.Flags().StringP("quote", "q", `"`, `Quote character, or "none"`)
	cmd.Flags().IntP("batch-size", "b", batch.DefaultSize, "Records per queue send")
	cmd.Flags().Bool("records", false, "Print each valid record as JSON")

	return cmd
}

func dialect(delim, quote string) (parser.Config, error) {
	d := []rune(delim)
	if delim == `\t` {
		d = []rune{'\t'}
	}
	if len(d) != 1 {
		return parser.Config{}, fmt.Errorf("delimiter %q must be a single character", delim)
	}
	cfg := parser.Config{Delimiter: d[0]}
	switch quote {
	case "none", "":
	case `"`:
		cfg.Quote = '"'
	default:
		return parser.Config{}, fmt.Errorf(`quote %q must be " or none`, quote)
	}
	return cfg, nil
}

// fileETag is the ETag the bucket assigns a single-part upload of f: the
// hex MD5 of its content. f is rewound afterwards.
func fileETag(f io.ReadSeeker) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func runCheck(w io.Writer, r io.Reader, key, version string, cfg parser.Config, batchSize int, printRecords bool) error {
	enc := json.NewEncoder(w)
	var each func(catalog.Record)
	if printRecords {
		each = func(rec catalog.Record) { _ = enc.Encode(rec) }
	}

	rep, err := admin.Check(r, key, version, cfg, batchSize, each)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "rows:     %d\n", rep.Rows)
	fmt.Fprintf(w, "valid:    %d\n", rep.Valid)
	fmt.Fprintf(w, "rejected: %d\n", len(rep.Rejected))
	for _, rj := range rep.Rejected {
		fmt.Fprintf(w, "  line %d: %s\n", rj.Line, rj.Reason)
	}
	fmt.Fprintf(w, "batches:  %d\n", rep.Batches)

	if !rep.WouldRelocate() {
		fmt.Fprintf(w, "aborted:  %v\n", rep.ParseError)
		return fmt.Errorf("file would stay in uploaded/: %w", rep.ParseError)
	}
	fmt.Fprintln(w, "result:   file would move to parsed/")
	return nil
}
