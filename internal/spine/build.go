package spine

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/yuanying/audiobook/internal/manifest"
)

var (
	ErrEmptySpine      = errors.New("reading order produced no tracks")
	ErrIncompleteSpine = errors.New("reading order could not be fully mapped")
)

// ResourceFactory creates the downloadable handle for a reading-order item.
type ResourceFactory func(item manifest.ReadingOrderItem, token string) (Resource, error)

// OrderKey returns a variant-specific ordering key for an item. ok is false when the item
// carries no key.
type OrderKey func(item manifest.ReadingOrderItem) (key []int, ok bool)

// BuildOptions configures how a reading order is mapped to tracks.
type BuildOptions struct {
	Identifier  string
	Token       string
	NewResource ResourceFactory
	// Accept rejects items the variant cannot play, e.g. by media type.
	Accept func(item manifest.ReadingOrderItem) error
	// OrderKey sorts tracks when every item carries a key. Nil keeps manifest order.
	OrderKey OrderKey
}

// ItemError records why one reading-order item could not become a track.
type ItemError struct {
	Index int
	Href  string
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("readingOrder[%d] %s: %v", e.Index, e.Href, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// BuildError reports a spine that could not be built completely.
type BuildError struct {
	Identifier string
	Total      int
	Failures   []ItemError
}

func (e *BuildError) Error() string {
	if e.Total == 0 || len(e.Failures) == e.Total {
		if len(e.Failures) == 0 {
			return fmt.Sprintf("build spine %s: %v", e.Identifier, ErrEmptySpine)
		}
		return fmt.Sprintf("build spine %s: %v: %s", e.Identifier, ErrEmptySpine, e.failureSummary())
	}
	return fmt.Sprintf("build spine %s: %v: %d of %d items failed: %s",
		e.Identifier, ErrIncompleteSpine, len(e.Failures), e.Total, e.failureSummary())
}

func (e *BuildError) failureSummary() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes the sentinel plus every item failure to errors.Is/As.
func (e *BuildError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	if e.Total == 0 || len(e.Failures) == e.Total {
		errs = append(errs, ErrEmptySpine)
	} else {
		errs = append(errs, ErrIncompleteSpine)
	}
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Build maps every reading-order item to a track. Partial spines are never returned: if any
// item fails, or nothing was produced, the whole build fails with a *BuildError.
func Build(items []manifest.ReadingOrderItem, opts BuildOptions) (*Spine, error) {
	type keyed struct {
		track *Track
		key   []int
		ok    bool
	}

	built := make([]keyed, 0, len(items))
	var failures []ItemError

	for i, item := range items {
		track, err := buildTrack(i, item, opts)
		if err != nil {
			failures = append(failures, ItemError{Index: i, Href: item.Href, Err: err})
			continue
		}
		k := keyed{track: track}
		if opts.OrderKey != nil {
			k.key, k.ok = opts.OrderKey(item)
		}
		built = append(built, k)
	}

	if len(built) == 0 || len(failures) > 0 {
		return nil, &BuildError{Identifier: opts.Identifier, Total: len(items), Failures: failures}
	}

	allKeyed := opts.OrderKey != nil
	for _, k := range built {
		if !k.ok {
			allKeyed = false
			break
		}
	}
	if allKeyed {
		slices.SortStableFunc(built, func(a, b keyed) int {
			return slices.Compare(a.key, b.key)
		})
	}

	tracks := make([]*Track, len(built))
	for i, k := range built {
		k.track.Index = i
		tracks[i] = k.track
	}
	return &Spine{tracks: tracks}, nil
}

func buildTrack(i int, item manifest.ReadingOrderItem, opts BuildOptions) (*Track, error) {
	if strings.TrimSpace(item.Href) == "" {
		return nil, errors.New("empty href")
	}
	if opts.Accept != nil {
		if err := opts.Accept(item); err != nil {
			return nil, err
		}
	}
	track := &Track{
		Index:     i,
		Href:      item.Href,
		Title:     item.Title,
		MediaType: item.Type,
		Duration:  item.Duration,
		Part:      item.Part,
		Sequence:  item.Sequence,
	}
	if opts.NewResource != nil {
		res, err := opts.NewResource(item, opts.Token)
		if err != nil {
			return nil, fmt.Errorf("resource: %w", err)
		}
		track.Resource = res
	}
	return track, nil
}
