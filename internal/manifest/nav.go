package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNavNotFound is returned when an HTML document contains no <nav> element.
var ErrNavNotFound = errors.New("navigation document has no nav element")

// ParseNavDocument parses an HTML navigation document into a table of contents tree.
//
// The toc nav is located in priority order:
//  1. <nav epub:type="toc">
//  2. <nav role="doc-toc">
//  3. the first <nav> in the document
//
// Each <li> contributes one entry from its <a> (or <span> for unlinked headings); nested <ol>
// lists become children.
func ParseNavDocument(content []byte) ([]TOCItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse navigation document: %w", err)
	}

	nav := findTOCNav(doc)
	if nav == nil {
		return nil, ErrNavNotFound
	}
	return parseNavList(nav.ChildrenFiltered("ol").First()), nil
}

func findTOCNav(doc *goquery.Document) *goquery.Selection {
	var byType, byRole *goquery.Selection
	navs := doc.Find("nav")
	navs.EachWithBreak(func(i int, s *goquery.Selection) bool {
		if typ, ok := s.Attr("epub:type"); ok && hasToken(typ, "toc") {
			byType = s
			return false
		}
		if role, ok := s.Attr("role"); ok && byRole == nil && hasToken(role, "doc-toc") {
			byRole = s
		}
		return true
	})
	switch {
	case byType != nil:
		return byType
	case byRole != nil:
		return byRole
	case navs.Length() > 0:
		return navs.First()
	}
	return nil
}

// parseNavList recursively converts an <ol> into TOC items.
func parseNavList(ol *goquery.Selection) []TOCItem {
	if ol == nil || ol.Length() == 0 {
		return nil
	}
	var items []TOCItem
	ol.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
		label := li.ChildrenFiltered("a").First()
		if label.Length() == 0 {
			label = li.ChildrenFiltered("span").First()
		}
		href, _ := label.Attr("href")
		item := TOCItem{
			Href:     strings.TrimSpace(href),
			Title:    strings.Join(strings.Fields(label.Text()), " "),
			Children: parseNavList(li.ChildrenFiltered("ol").First()),
		}
		if item.Title == "" && item.Href == "" && len(item.Children) == 0 {
			return
		}
		items = append(items, item)
	})
	return items
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}
