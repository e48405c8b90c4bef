package audiobook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yuanying/audiobook/internal/logging"
	"github.com/yuanying/audiobook/internal/spine"
)

var (
	ErrNotReady        = errors.New("drm verification has not succeeded")
	ErrNotDownloadable = errors.New("track cannot be stored locally")
)

// Download stores every track on local disk, in spine order, and returns the playable paths.
// Tracks already cached are not fetched again and protected tracks are decrypted. It fails with
// ErrNotReady until DRM verification has succeeded.
func (b *Audiobook) Download(ctx context.Context) ([]string, error) {
	if status := b.DRMStatus(); !b.PlaybackReady() {
		return nil, fmt.Errorf("download %s: %w (status %s)", b.id, ErrNotReady, status)
	}
	tracks := b.Spine().Tracks()
	paths := make([]string, len(tracks))
	for i, track := range tracks {
		f, ok := track.Resource.(spine.Fetcher)
		if !ok {
			return nil, fmt.Errorf("track %d (%s): %w", track.Index, track.Href, ErrNotDownloadable)
		}
		p, err := f.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("track %d (%s): %w", track.Index, track.Href, err)
		}
		b.logger.Debug("track stored", slog.Int("track", track.Index), slog.String(logging.FieldHref, track.Href))
		paths[i] = p
	}
	b.logger.Info("tracks downloaded", slog.Int("tracks", len(paths)))
	return paths, nil
}
