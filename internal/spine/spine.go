package spine

import (
	"context"
	"time"
)

// Resource is an opaque handle to a track's downloadable media. Its fetch and cache lifecycle
// is owned outside the spine.
type Resource interface {
	// Key identifies the resource; it is stable for a given href and usable as a map key.
	Key() string
	// Delete removes any locally stored copy.
	Delete(ctx context.Context) error
}

// Fetcher is implemented by resources that can be stored on local disk.
type Fetcher interface {
	// Fetch stores the resource locally when needed and returns the path of the playable file.
	Fetch(ctx context.Context) (string, error)
}

// Track is one playable unit of the spine.
type Track struct {
	Index     int
	Href      string
	Title     string
	MediaType string
	Duration  time.Duration
	Part      int
	Sequence  int
	Resource  Resource
}

// Spine is the ordered, non-empty list of tracks built from a reading order.
// It is immutable once built and may be shared freely between goroutines.
type Spine struct {
	tracks []*Track
}

// Len returns the number of tracks.
func (s *Spine) Len() int {
	return len(s.tracks)
}

// Track returns the track at index i, or nil when i is out of range.
func (s *Spine) Track(i int) *Track {
	if i < 0 || i >= len(s.tracks) {
		return nil
	}
	return s.tracks[i]
}

// First returns the first track.
func (s *Spine) First() *Track {
	return s.tracks[0]
}

// Last returns the last track.
func (s *Spine) Last() *Track {
	return s.tracks[len(s.tracks)-1]
}

// Tracks returns a copy of the track list.
func (s *Spine) Tracks() []*Track {
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Duration returns the summed duration of all tracks.
func (s *Spine) Duration() time.Duration {
	var total time.Duration
	for _, t := range s.tracks {
		total += t.Duration
	}
	return total
}

// IndexOfHref returns the index of the first track whose href equals href.
func (s *Spine) IndexOfHref(href string) (int, bool) {
	for _, t := range s.tracks {
		if t.Href == href {
			return t.Index, true
		}
	}
	return -1, false
}
