// Package chapters resolves a manifest table of contents onto a spine.
//
// Entries are visited depth-first, parents before children. Each href is matched against the
// track hrefs (exact after path cleaning, else by file name when that is unique), and a media
// fragment such as "#t=90" or "#t=npt:00:01:30" becomes the offset into the matched track.
// Entries that cannot be placed are skipped with a warning; starts must strictly increase.
// When nothing resolves, one chapter per track is produced instead.
package chapters

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/yuanying/audiobook/internal/logging"
	"github.com/yuanying/audiobook/internal/manifest"
	"github.com/yuanying/audiobook/internal/position"
	"github.com/yuanying/audiobook/internal/spine"
)

// Build resolves toc against sp. The result is sorted by start and never empty for a
// non-empty spine.
func Build(toc []manifest.TOCItem, sp *spine.Spine, logger *slog.Logger) []position.Chapter {
	if sp == nil || sp.Len() == 0 {
		return nil
	}
	logger = logging.OrNop(logger)
	r := newResolver(sp)

	var chapters []position.Chapter
	for _, item := range flatten(toc) {
		start, err := r.resolve(item.Href)
		if err != nil {
			logger.Warn("skipping unresolved toc entry",
				slog.String("title", item.Title),
				slog.String(logging.FieldHref, item.Href),
				logging.Error(err))
			continue
		}
		if n := len(chapters); n > 0 && !chapters[n-1].Start.Before(start) {
			logger.Warn("skipping out-of-order toc entry",
				slog.String("title", item.Title),
				slog.String(logging.FieldHref, item.Href),
				slog.String("start", start.String()),
				slog.String("previous", chapters[n-1].Start.String()))
			continue
		}
		chapters = append(chapters, position.Chapter{Title: strings.TrimSpace(item.Title), Start: start})
	}

	if len(chapters) == 0 {
		if len(toc) > 0 {
			logger.Warn("no toc entry resolved, using one chapter per track", slog.Int("entries", len(toc)))
		}
		chapters = perTrack(sp)
	}
	fillDurations(chapters, sp)
	return chapters
}

// flatten lists toc depth-first with each parent before its children.
func flatten(toc []manifest.TOCItem) []manifest.TOCItem {
	var out []manifest.TOCItem
	var walk func(items []manifest.TOCItem)
	walk = func(items []manifest.TOCItem) {
		for _, item := range items {
			out = append(out, item)
			walk(item.Children)
		}
	}
	walk(toc)
	return out
}

func perTrack(sp *spine.Spine) []position.Chapter {
	caser := cases.Title(language.English)
	chapters := make([]position.Chapter, 0, sp.Len())
	for _, track := range sp.Tracks() {
		title := strings.TrimSpace(track.Title)
		if title == "" {
			title = caser.String(fmt.Sprintf("track %d", track.Index+1))
		}
		start, _ := position.New(sp, track.Index, 0)
		chapters = append(chapters, position.Chapter{Title: title, Start: start})
	}
	return chapters
}

func fillDurations(chapters []position.Chapter, sp *spine.Spine) {
	for i := range chapters {
		end := sp.Duration()
		if i+1 < len(chapters) {
			end = chapters[i+1].Start.Elapsed()
		}
		if d := end - chapters[i].Start.Elapsed(); d > 0 {
			chapters[i].Duration = d
		}
	}
}

type resolver struct {
	sp     *spine.Spine
	byPath map[string]int
	byBase map[string][]int
}

func newResolver(sp *spine.Spine) *resolver {
	r := &resolver{sp: sp, byPath: map[string]int{}, byBase: map[string][]int{}}
	for _, track := range sp.Tracks() {
		p := normalizePath(track.Href)
		if _, dup := r.byPath[p]; !dup {
			r.byPath[p] = track.Index
		}
		base := path.Base(p)
		r.byBase[base] = append(r.byBase[base], track.Index)
	}
	return r
}

// normalizePath cleans a slash path for consistent map lookups.
func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(strings.TrimPrefix(p, "./"))
}

func (r *resolver) resolve(href string) (position.Position, error) {
	p, fragment := manifest.SplitFragment(href)
	if strings.TrimSpace(p) == "" {
		return position.Position{}, errors.New("empty href")
	}
	index, ok := r.trackIndex(p)
	if !ok {
		return position.Position{}, fmt.Errorf("no track matches %q", p)
	}
	offset, err := ParseTimeFragment(fragment)
	if err != nil {
		return position.Position{}, err
	}
	track := r.sp.Track(index)
	if offset > track.Duration {
		return position.Position{}, fmt.Errorf("offset %v beyond track %d duration %v", offset, index, track.Duration)
	}
	return position.New(r.sp, index, offset)
}

func (r *resolver) trackIndex(p string) (int, bool) {
	p = normalizePath(p)
	if i, ok := r.byPath[p]; ok {
		return i, true
	}
	if matches := r.byBase[path.Base(p)]; len(matches) == 1 {
		return matches[0], true
	}
	return 0, false
}
