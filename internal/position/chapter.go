package position

import (
	"sort"
	"time"
)

// Chapter is a named playback region starting at Start.
type Chapter struct {
	Title    string
	Start    Position
	Duration time.Duration // zero when unknown
}

// ChapterIn returns the chapter with the greatest start position not after p. chapters must be
// sorted by start. ok is false when p precedes the first chapter.
func (p Position) ChapterIn(chapters []Chapter) (Chapter, bool) {
	// first chapter starting strictly after p
	i := sort.Search(len(chapters), func(i int) bool {
		return Compare(chapters[i].Start, p) > 0
	})
	if i == 0 {
		return Chapter{}, false
	}
	return chapters[i-1], true
}

// ChapterIndex is like ChapterIn but returns the index into chapters, or -1.
func (p Position) ChapterIndex(chapters []Chapter) int {
	i := sort.Search(len(chapters), func(i int) bool {
		return Compare(chapters[i].Start, p) > 0
	})
	return i - 1
}
