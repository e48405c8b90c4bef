package audiobook

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/yuanying/audiobook/internal/logging"
)

// TrackDeletionError is the failure to delete one track's local content.
type TrackDeletionError struct {
	Index int
	Href  string
	Err   error
}

func (e TrackDeletionError) Error() string {
	return fmt.Sprintf("track %d (%s): %v", e.Index, e.Href, e.Err)
}

func (e TrackDeletionError) Unwrap() error {
	return e.Err
}

// DeletionError lists the tracks whose local content could not be deleted. Deletions of the
// other tracks are not rolled back.
type DeletionError struct {
	BookID   string
	Failures []TrackDeletionError
}

func (e *DeletionError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("failed to delete %d track(s) of %s: %s", len(e.Failures), e.BookID, strings.Join(msgs, "; "))
}

func (e *DeletionError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// DeleteLocalContent deletes every track's downloaded content concurrently. It returns a
// *DeletionError when any track fails.
func (b *Audiobook) DeleteLocalContent(ctx context.Context) error {
	tracks := b.Spine().Tracks()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures []TrackDeletionError
	)
	for _, track := range tracks {
		if track.Resource == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := track.Resource.Delete(ctx); err != nil {
				mu.Lock()
				failures = append(failures, TrackDeletionError{Index: track.Index, Href: track.Href, Err: err})
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(failures) == 0 {
		b.logger.Info("local content deleted", slog.Int("tracks", len(tracks)))
		return nil
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	for _, f := range failures {
		b.logger.Warn("failed to delete track content",
			slog.Int("track", f.Index), slog.String(logging.FieldHref, f.Href), logging.Error(f.Err))
	}
	return &DeletionError{BookID: b.id, Failures: failures}
}
