package manifest

import (
	"path"
	"strings"
)

// CoverInfo holds information about the detected cover image.
type CoverInfo struct {
	Href            string
	MediaType       string
	Width           int
	Height          int
	DetectionMethod string // "rel-image", "rel", "filename"
}

// DetectCover detects the cover image from the manifest links using multiple methods.
// Methods are tried in priority order:
//  1. rel="cover" with an image media type
//  2. rel="cover" with any media type
//  3. filename pattern (basename contains "cover", case-insensitive, SVG excluded)
//
// Returns nil if no cover image is found.
func (d *Document) DetectCover() *CoverInfo {
	for _, l := range d.Links {
		if l.HasRel("cover") && isImageMediaType(l.Type) {
			return coverFromLink(l, "rel-image")
		}
	}

	for _, l := range d.Links {
		if l.HasRel("cover") && l.Href != "" {
			return coverFromLink(l, "rel")
		}
	}

	for _, l := range d.Links {
		if !isImageMediaType(l.Type) {
			continue
		}
		base := strings.ToLower(path.Base(stripFragment(l.Href)))
		if strings.Contains(base, "cover") {
			return coverFromLink(l, "filename")
		}
	}

	return nil
}

func coverFromLink(l Link, method string) *CoverInfo {
	return &CoverInfo{
		Href:            l.Href,
		MediaType:       l.Type,
		Width:           l.Width,
		Height:          l.Height,
		DetectionMethod: method,
	}
}

// isImageMediaType checks if a media type indicates a raster image.
func isImageMediaType(mediaType string) bool {
	mt := strings.ToLower(mediaType)
	return strings.HasPrefix(mt, "image/") && mt != "image/svg+xml"
}

func stripFragment(href string) string {
	if idx := strings.IndexAny(href, "?#"); idx >= 0 {
		return href[:idx]
	}
	return href
}
