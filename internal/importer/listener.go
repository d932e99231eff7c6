package importer

import (
	"context"
	"errors"

	"github.com/JonMunkholm/catalogimport/internal/storage/objects"
)

// Listen offers every event's key until events closes or ctx ends.
func (im *Importer) Listen(ctx context.Context, events <-chan objects.Event) {
	im.logger.Info("listening for uploads", "prefix", im.opts.UploadPrefix)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				im.logger.Warn("upload notifications stopped")
				return
			}
			im.offerLogged(ctx, ev.Key, "notification")
		}
	}
}

func (im *Importer) offerLogged(ctx context.Context, key, via string) {
	err := im.Offer(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyImporting):
		im.logger.Debug("file already importing", "key", key, "via", via)
	case errors.Is(err, ErrTooManyFiles):
		im.logger.Warn("import slots busy, leaving file for the sweeper", "key", key, "via", via)
	default:
		im.logger.Error("cannot schedule import", "key", key, "via", via, "error", err)
	}
}
