package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
)

var (
	ErrMissingField    = errors.New("required field missing")
	ErrInvalidDate     = errors.New("invalid ISO-8601 date")
	ErrInvalidLanguage = errors.New("invalid BCP 47 language tag")
	ErrInvalidValue    = errors.New("invalid value")
	ErrMalformed       = errors.New("malformed manifest JSON")
)

// DecodeError reports why a manifest could not be decoded. Field holds the JSON path of the
// offending field and is empty when the document itself is not valid JSON. A JSON value of the
// wrong type keeps the dotted path reported by encoding/json, such as "metadata.title".
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode manifest: %v", e.Err)
	}
	return fmt.Sprintf("decode manifest: %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func fieldError(field string, err error) *DecodeError {
	return &DecodeError{Field: field, Err: err}
}

// wireDocument represents the manifest JSON structure
type wireDocument struct {
	Context      json.RawMessage `json:"@context"`
	FormatType   string          `json:"formatType"`
	Metadata     *wireMetadata   `json:"metadata"`
	Links        []wireLink      `json:"links"`
	ReadingOrder []wireItem      `json:"readingOrder"`
	TOC          []wireTOCItem   `json:"toc"`
}

// wireMetadata represents the metadata object
type wireMetadata struct {
	Identifier *string         `json:"identifier"`
	Title      *string         `json:"title"`
	Subtitle   string          `json:"subtitle"`
	Author     json.RawMessage `json:"author"`
	Narrator   json.RawMessage `json:"narrator"`
	Publisher  json.RawMessage `json:"publisher"`
	Language   json.RawMessage `json:"language"`
	Duration   *float64        `json:"duration"`
	Published  *string         `json:"published"`
	Modified   *string         `json:"modified"`
	License    *string         `json:"license"`
	Abridged   bool            `json:"abridged"`
	Encrypted  *wireEncryption `json:"encrypted"`
}

type wireEncryption struct {
	Scheme    string `json:"scheme"`
	Profile   string `json:"profile"`
	Algorithm string `json:"algorithm"`
}

// wireLink represents an entry of the links array
type wireLink struct {
	Rel     json.RawMessage `json:"rel"`
	Href    string          `json:"href"`
	Type    string          `json:"type"`
	Title   string          `json:"title"`
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Bitrate float64         `json:"bitrate"`
}

// wireItem represents an entry of the readingOrder array
type wireItem struct {
	Href     string   `json:"href"`
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Bitrate  float64  `json:"bitrate"`
	Duration *float64 `json:"duration"`
	Part     int      `json:"findaway:part"`
	Sequence int      `json:"findaway:sequence"`
}

// wireTOCItem represents a node of the toc tree
type wireTOCItem struct {
	Href     string        `json:"href"`
	Title    string        `json:"title"`
	Children []wireTOCItem `json:"children"`
}

// Decode parses raw manifest bytes into a validated Document.
// No partial document is returned: any missing required field or malformed value fails the
// whole decode with a *DecodeError naming the field.
func Decode(raw []byte) (*Document, error) {
	var wire wireDocument
	if err := json.Unmarshal(raw, &wire); err != nil {
		de := &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			de.Field = te.Field
		}
		return nil, de
	}

	if wire.Metadata == nil {
		return nil, fieldError("metadata", ErrMissingField)
	}
	md, err := decodeMetadata(wire.Metadata)
	if err != nil {
		return nil, err
	}

	contexts, err := stringList(wire.Context)
	if err != nil {
		return nil, fieldError("@context", err)
	}

	doc := &Document{
		Contexts:   contexts,
		FormatType: strings.TrimSpace(wire.FormatType),
		Metadata:   md,
		Raw:        append([]byte(nil), raw...),
	}

	for i, l := range wire.Links {
		rels, err := stringList(l.Rel)
		if err != nil {
			return nil, fieldError(fmt.Sprintf("links[%d].rel", i), err)
		}
		doc.Links = append(doc.Links, Link{
			Rel:     rels,
			Href:    l.Href,
			Type:    l.Type,
			Title:   l.Title,
			Width:   l.Width,
			Height:  l.Height,
			Bitrate: l.Bitrate,
		})
	}

	if len(wire.ReadingOrder) == 0 {
		return nil, fieldError("readingOrder", ErrMissingField)
	}
	for i, it := range wire.ReadingOrder {
		item, err := decodeItem(i, it)
		if err != nil {
			return nil, err
		}
		doc.ReadingOrder = append(doc.ReadingOrder, item)
	}

	doc.TOC = decodeTOC(wire.TOC)

	return doc, nil
}

func decodeMetadata(w *wireMetadata) (Metadata, error) {
	var md Metadata

	id, err := requiredString("metadata.identifier", w.Identifier)
	if err != nil {
		return md, err
	}
	md.Identifier = id

	title, err := requiredString("metadata.title", w.Title)
	if err != nil {
		return md, err
	}
	md.Title = title
	md.Subtitle = strings.TrimSpace(w.Subtitle)

	if md.Author, err = requiredContributor("metadata.author", w.Author); err != nil {
		return md, err
	}
	if md.Narrator, err = requiredContributor("metadata.narrator", w.Narrator); err != nil {
		return md, err
	}
	if len(w.Publisher) > 0 {
		publisher, err := decodeContributor(w.Publisher)
		if err != nil {
			return md, fieldError("metadata.publisher", err)
		}
		md.Publisher = publisher.Name
	}

	lang, err := firstString(w.Language)
	if err != nil {
		return md, fieldError("metadata.language", err)
	}
	if lang == "" {
		return md, fieldError("metadata.language", ErrMissingField)
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return md, fieldError("metadata.language", fmt.Errorf("%w: %q", ErrInvalidLanguage, lang))
	}
	md.Language = tag.String()

	if w.Duration == nil {
		return md, fieldError("metadata.duration", ErrMissingField)
	}
	d, err := seconds(*w.Duration)
	if err != nil {
		return md, fieldError("metadata.duration", err)
	}
	md.Duration = d

	if w.Published != nil {
		if md.Published, err = parseDate(*w.Published); err != nil {
			return md, fieldError("metadata.published", err)
		}
	}
	if w.Modified != nil {
		if md.Modified, err = parseDate(*w.Modified); err != nil {
			return md, fieldError("metadata.modified", err)
		}
	}

	license, err := requiredString("metadata.license", w.License)
	if err != nil {
		return md, err
	}
	md.License = license
	md.Abridged = w.Abridged

	if w.Encrypted != nil {
		md.Encrypted = &Encryption{
			Scheme:    strings.TrimSpace(w.Encrypted.Scheme),
			Profile:   strings.TrimSpace(w.Encrypted.Profile),
			Algorithm: strings.TrimSpace(w.Encrypted.Algorithm),
		}
	}

	return md, nil
}

func decodeItem(i int, w wireItem) (ReadingOrderItem, error) {
	href := strings.TrimSpace(w.Href)
	if href == "" {
		return ReadingOrderItem{}, fieldError(fmt.Sprintf("readingOrder[%d].href", i), ErrMissingField)
	}
	item := ReadingOrderItem{
		Href:     href,
		Type:     strings.TrimSpace(w.Type),
		Title:    strings.TrimSpace(w.Title),
		Bitrate:  w.Bitrate,
		Part:     w.Part,
		Sequence: w.Sequence,
	}
	if w.Duration != nil {
		d, err := seconds(*w.Duration)
		if err != nil {
			return ReadingOrderItem{}, fieldError(fmt.Sprintf("readingOrder[%d].duration", i), err)
		}
		item.Duration = d
	}
	return item, nil
}

func decodeTOC(items []wireTOCItem) []TOCItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]TOCItem, 0, len(items))
	for _, it := range items {
		out = append(out, TOCItem{
			Href:     strings.TrimSpace(it.Href),
			Title:    strings.TrimSpace(it.Title),
			Children: decodeTOC(it.Children),
		})
	}
	return out
}

// dateLayouts is the accepted ISO-8601 profile: calendar dates and RFC 3339 date-times.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
}

// parseDate parses value strictly against dateLayouts. There is no fallback to a zero time.
func parseDate(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

func seconds(v float64) (time.Duration, error) {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: duration %v", ErrInvalidValue, v)
	}
	return time.Duration(v * float64(time.Second)), nil
}

func requiredString(field string, v *string) (string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", fieldError(field, ErrMissingField)
	}
	return strings.TrimSpace(*v), nil
}

func requiredContributor(field string, raw json.RawMessage) (Contributor, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return Contributor{}, fieldError(field, ErrMissingField)
	}
	c, err := decodeContributor(raw)
	if err != nil {
		return Contributor{}, fieldError(field, err)
	}
	if c.Name == "" {
		return Contributor{}, fieldError(field, ErrMissingField)
	}
	return c, nil
}

// decodeContributor accepts a bare name, a {name, sortAs} object or an array of either,
// in which case the first entry wins.
func decodeContributor(raw json.RawMessage) (Contributor, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Contributor{}, nil
	}
	switch raw[0] {
	case '"':
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return Contributor{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return Contributor{Name: strings.TrimSpace(name)}, nil
	case '{':
		var obj struct {
			Name   string `json:"name"`
			SortAs string `json:"sortAs"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Contributor{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return Contributor{Name: strings.TrimSpace(obj.Name), SortAs: strings.TrimSpace(obj.SortAs)}, nil
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return Contributor{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		if len(list) == 0 {
			return Contributor{}, nil
		}
		return decodeContributor(list[0])
	}
	return Contributor{}, fmt.Errorf("%w: unexpected contributor %s", ErrInvalidValue, raw)
}

// firstString accepts a string or an array of strings and returns the first one.
func firstString(raw json.RawMessage) (string, error) {
	list, err := stringList(raw)
	if err != nil || len(list) == 0 {
		return "", err
	}
	return list[0], nil
}

func stringList(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return []string{strings.TrimSpace(s)}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: expected string or array of strings", ErrInvalidValue)
	}
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	return list, nil
}
