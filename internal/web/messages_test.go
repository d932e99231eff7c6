package web

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/storage/postgres"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"malformed json", fmt.Errorf("%w: unexpected end", catalog.ErrMalformedJSON), "REQ001"},
		{"missing name", errMissingName, "REQ002"},
		{"invalid name", fmt.Errorf("%w: %q", errInvalidName, "a/b"), "REQ004"},
		{"canceled", fmt.Errorf("query: %w", context.Canceled), "REQ003"},
		{"validation", &catalog.ValidationError{Field: "price", Message: "must be greater than 0"}, "VAL001"},
		{"not found", postgres.ErrNotFound, "PRD001"},
		{"duplicate sentinel", fmt.Errorf("insert: %w", postgres.ErrDuplicate), "DB001"},
		{"duplicate key text", errors.New("ERROR: duplicate key value violates unique constraint"), "DB001"},
		{"presign", fmt.Errorf("%w: boom", errPresignFailed), "STO001"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), "DB004"},
		{"timeout is case-insensitive", errors.New("i/o TIMEOUT"), "DB006"},
		{"deadlock", errors.New("deadlock detected"), "DB007"},
		{"unknown", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err).Code; got != tt.wantCode {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got, tt.wantCode)
			}
		})
	}
}
