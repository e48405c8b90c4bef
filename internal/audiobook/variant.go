package audiobook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yuanying/audiobook/internal/drm"
	"github.com/yuanying/audiobook/internal/manifest"
	"github.com/yuanying/audiobook/internal/resource"
	"github.com/yuanying/audiobook/internal/spine"
)

// Markers that select a variant.
const (
	OverdriveFormatType = "application/vnd.overdrive.circulation.api+json;profile=audiobook"
	LCPContext          = "http://readium.org/webpub-manifest/context.jsonld"
)

var (
	ErrNilManifest          = errors.New("nil manifest")
	ErrHandlerNotRegistered = errors.New("no drm handler registered for scheme")
	ErrDecryptorRequired    = errors.New("manifest requires a decryptor")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrVariantChanged       = errors.New("manifest selects a different variant")
)

// SelectionError reports that no construction variant applies to a manifest.
type SelectionError struct {
	Identifier string
	Reason     string
	Err        error
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("cannot open audiobook %q: %s: %v", e.Identifier, e.Reason, e.Err)
}

func (e *SelectionError) Unwrap() error {
	return e.Err
}

// variant is one construction path.
type variant interface {
	Kind() Kind
	BuildOptions(doc *manifest.Document, token string) spine.BuildOptions
	InitialStatus() drm.Status
}

// verifier is implemented by variants whose playback is gated on a DRM check.
type verifier interface {
	Verify(ctx context.Context, sp *spine.Spine) error
}

// selectVariant applies the precedence rules; the first match wins.
func selectVariant(doc *manifest.Document, opts Options, cache *resource.Cache) (variant, error) {
	id := doc.Metadata.Identifier

	if enc := doc.Metadata.Encrypted; enc != nil && isDelegatedScheme(enc.Scheme) {
		registry := opts.Registry
		if registry == nil {
			registry = DefaultRegistry
		}
		fn, ok := registry.Lookup(enc.Scheme)
		if !ok {
			return nil, &SelectionError{Identifier: id, Reason: enc.Scheme, Err: ErrHandlerNotRegistered}
		}
		h, err := fn(doc)
		if err != nil {
			return nil, &SelectionError{Identifier: id, Reason: "construct handler for " + enc.Scheme, Err: err}
		}
		return &delegatedVariant{scheme: enc.Scheme, handler: h}, nil
	}

	if doc.FormatType == OverdriveFormatType {
		return &overdriveVariant{cache: cache}, nil
	}

	if doc.HasContext(LCPContext) {
		if opts.Decryptor == nil {
			return nil, &SelectionError{Identifier: id, Reason: "protected context " + LCPContext, Err: ErrDecryptorRequired}
		}
		return &lcpVariant{cache: cache, decryptor: opts.Decryptor}, nil
	}

	return &openAccessVariant{cache: cache}, nil
}

// describe names a variant; delegated variants include their scheme.
func describe(v variant) string {
	if d, ok := v.(*delegatedVariant); ok {
		return fmt.Sprintf("%s (%s)", d.Kind(), d.scheme)
	}
	return v.Kind().String()
}

func isDelegatedScheme(scheme string) bool {
	return scheme == drm.SchemeFindaway || scheme == drm.SchemeFeedbooks
}

// acceptAudio admits items with an audio media type or none at all.
func acceptAudio(item manifest.ReadingOrderItem) error {
	if item.Type == "" || strings.HasPrefix(item.Type, "audio/") {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, item.Type)
}

// findawayOrder sorts by (part, sequence) when every item declares them.
func findawayOrder(item manifest.ReadingOrderItem) ([]int, bool) {
	if !item.HasFindawayOrder() {
		return nil, false
	}
	return []int{item.Part, item.Sequence}, true
}
