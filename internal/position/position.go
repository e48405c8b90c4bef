// Package position models a point in playback as a track index plus an intra-track offset.
//
// A Position holds a read-only reference to the spine it was created on, never ownership, so
// any number of positions may share one spine and the spine can be rebuilt without
// invalidating them structurally: equality and ordering only look at (index, offset).
package position

import (
	"errors"
	"fmt"
	"time"

	"github.com/yuanying/audiobook/internal/spine"
)

var (
	ErrNilSpine        = errors.New("position: nil spine")
	ErrIndexOutOfRange = errors.New("position: track index out of range")
	ErrNegativeOffset  = errors.New("position: negative offset")
)

// Position is an immutable playback point.
type Position struct {
	spine  *spine.Spine
	index  int
	offset time.Duration
}

// Start returns the position at the beginning of the first track.
func Start(sp *spine.Spine) Position {
	return Position{spine: sp}
}

// New returns the position at offset into track index of sp. The offset may exceed the track
// duration; Advance(0) normalizes it.
func New(sp *spine.Spine, index int, offset time.Duration) (Position, error) {
	if sp == nil {
		return Position{}, ErrNilSpine
	}
	if index < 0 || index >= sp.Len() {
		return Position{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, sp.Len())
	}
	if offset < 0 {
		return Position{}, fmt.Errorf("%w: %v", ErrNegativeOffset, offset)
	}
	return Position{spine: sp, index: index, offset: offset}, nil
}

// Spine returns the track list the position refers to.
func (p Position) Spine() *spine.Spine { return p.spine }

// Index returns the track index.
func (p Position) Index() int { return p.index }

// Offset returns the intra-track timestamp.
func (p Position) Offset() time.Duration { return p.offset }

// Track returns the referenced track.
func (p Position) Track() *spine.Track {
	if p.spine == nil {
		return nil
	}
	return p.spine.Track(p.index)
}

// IsZero reports whether p was never initialized with a spine.
func (p Position) IsZero() bool { return p.spine == nil }

// Advance moves the position by d, which may be negative. Remainders that fall outside
// [0, track.Duration) carry into the neighbouring tracks. When the sequence boundary is
// reached the result is clamped to (first track, 0) or (last track, last duration) and
// boundary is true.
func (p Position) Advance(d time.Duration) (next Position, boundary bool) {
	if p.spine == nil {
		return p, true
	}
	sp := p.spine
	i := p.index
	off := p.offset + d

	for off >= sp.Track(i).Duration {
		if i == sp.Len()-1 {
			return Position{spine: sp, index: i, offset: sp.Track(i).Duration}, true
		}
		off -= sp.Track(i).Duration
		i++
	}
	for off < 0 {
		if i == 0 {
			return Position{spine: sp, index: 0}, true
		}
		i--
		off += sp.Track(i).Duration
	}
	return Position{spine: sp, index: i, offset: off}, false
}

// Elapsed returns the playback time from the start of the spine to p.
func (p Position) Elapsed() time.Duration {
	var total time.Duration
	for i := 0; i < p.index; i++ {
		total += p.spine.Track(i).Duration
	}
	return total + p.offset
}

// Remaining returns the playback time from p to the end of the spine.
func (p Position) Remaining() time.Duration {
	if p.spine == nil {
		return 0
	}
	if r := p.spine.Duration() - p.Elapsed(); r > 0 {
		return r
	}
	return 0
}

// Rebase re-anchors p onto sp, typically a spine rebuilt after a manifest update.
func (p Position) Rebase(sp *spine.Spine) (Position, error) {
	return New(sp, p.index, p.offset)
}

// Compare orders positions by track index, then offset. It returns -1, 0 or +1.
func Compare(a, b Position) int {
	switch {
	case a.index < b.index:
		return -1
	case a.index > b.index:
		return 1
	case a.offset < b.offset:
		return -1
	case a.offset > b.offset:
		return 1
	}
	return 0
}

// Equal reports structural equality: same track index and offset, regardless of which
// spine instance either position refers to.
func (p Position) Equal(o Position) bool {
	return Compare(p, o) == 0
}

// Before reports whether p is strictly before o.
func (p Position) Before(o Position) bool {
	return Compare(p, o) < 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d@%s", p.index, p.offset)
}
