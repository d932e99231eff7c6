package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/catalogimport/internal/metrics"
)

// Relocator moves processed files from the intake prefix to the parsed
// prefix. Object stores have no rename, so this is a copy followed by a
// delete; a failure between the two leaves the file in both places, and
// reprocessing it is harmless because commits are idempotent.
type Relocator struct {
	store        ObjectStore
	uploadPrefix string
	parsedPrefix string
}

// NewRelocator moves keys from uploadPrefix to parsedPrefix in store.
func NewRelocator(store ObjectStore, uploadPrefix, parsedPrefix string) *Relocator {
	return &Relocator{store: store, uploadPrefix: uploadPrefix, parsedPrefix: parsedPrefix}
}

// Target maps uploaded/<name> to parsed/<name>.
func (r *Relocator) Target(sourceKey string) (string, error) {
	name, ok := strings.CutPrefix(sourceKey, r.uploadPrefix)
	if !ok || name == "" {
		return "", fmt.Errorf("%s is not under %s", sourceKey, r.uploadPrefix)
	}
	return r.parsedPrefix + name, nil
}

// Relocate copies sourceKey to its target and deletes the source. If the
// copy fails the source is untouched.
func (r *Relocator) Relocate(ctx context.Context, sourceKey string) (string, error) {
	target, err := r.Target(sourceKey)
	if err != nil {
		return "", err
	}

	defer metrics.Since(metrics.RelocationDuration, time.Now())

	if err := r.store.Copy(ctx, sourceKey, target); err != nil {
		return "", fmt.Errorf("relocate %s: %w", sourceKey, err)
	}
	if err := r.store.Remove(ctx, sourceKey); err != nil {
		return target, fmt.Errorf("relocate %s: copied to %s but source not removed: %w", sourceKey, target, err)
	}
	return target, nil
}
