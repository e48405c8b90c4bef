package audiobook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/yuanying/audiobook/internal/chapters"
	"github.com/yuanying/audiobook/internal/drm"
	"github.com/yuanying/audiobook/internal/logging"
	"github.com/yuanying/audiobook/internal/manifest"
	"github.com/yuanying/audiobook/internal/position"
	"github.com/yuanying/audiobook/internal/resource"
	"github.com/yuanying/audiobook/internal/spine"
)

// Options configures Open.
type Options struct {
	// Registry resolves delegated DRM schemes; nil uses DefaultRegistry.
	Registry *Registry
	// Decryptor is required for LCP-protected manifests.
	Decryptor drm.Decryptor
	// Token is sent as a bearer token when fetching tracks.
	Token string
	// Resources is the download cache; nil uses a directory under os.TempDir.
	Resources *resource.Cache
	Logger    *slog.Logger
	// OnDRMStatus is called once for every completed verification attempt.
	OnDRMStatus func(drm.Result)
	// RestoreStatus, when set, is the persisted DRM status to start from. No initial
	// verification runs; call CheckDRM to re-verify. Books without DRM verification ignore it.
	RestoreStatus *drm.Status
}

// Audiobook is one opened manifest.
type Audiobook struct {
	id     string
	token  string
	logger *slog.Logger
	notify func(drm.Result)
	// selection and cache are reused to re-select the variant on Update.
	selection Options
	cache     *resource.Cache

	state  atomic.Pointer[snapshot]
	status *drm.Cell
}

// snapshot is the part of an Audiobook replaced by Update.
type snapshot struct {
	doc      *manifest.Document
	variant  variant
	spine    *spine.Spine
	chapters []position.Chapter
}

// Open selects the construction variant for doc, builds its spine and chapters, and starts DRM
// verification in the background unless opts restores a status. ctx bounds that initial
// verification. No Audiobook is returned when selection or the spine build fails.
func Open(ctx context.Context, doc *manifest.Document, opts Options) (*Audiobook, error) {
	if doc == nil {
		return nil, ErrNilManifest
	}
	id := doc.Metadata.Identifier
	logger := logging.NewComponentLogger(opts.Logger, "audiobook").With(slog.String(logging.FieldBookID, id))

	cache := opts.Resources
	if cache == nil {
		cache = &resource.Cache{Dir: filepath.Join(os.TempDir(), "audiobook")}
	}
	if cache.Logger == nil {
		cp := *cache
		cp.Logger = logger
		cache = &cp
	}

	b := &Audiobook{
		id:        id,
		token:     opts.Token,
		logger:    logger,
		notify:    opts.OnDRMStatus,
		selection: Options{Registry: opts.Registry, Decryptor: opts.Decryptor},
		cache:     cache,
	}
	snap, err := b.prepare(doc)
	if err != nil {
		return nil, err
	}
	b.status = drm.NewCell(snap.variant.InitialStatus())
	b.state.Store(snap)
	logger.Info("audiobook opened",
		slog.String("kind", snap.variant.Kind().String()),
		slog.Int("tracks", snap.spine.Len()),
		slog.Int("chapters", len(snap.chapters)))

	if _, ok := snap.variant.(verifier); ok && opts.RestoreStatus != nil {
		b.status.Set(*opts.RestoreStatus)
		return b, nil
	}
	b.CheckDRM(ctx)
	return b, nil
}

// OpenBytes decodes raw and opens the result.
func OpenBytes(ctx context.Context, raw []byte, opts Options) (*Audiobook, error) {
	doc, err := manifest.Decode(raw)
	if err != nil {
		return nil, err
	}
	return Open(ctx, doc, opts)
}

// prepare selects the variant for doc and builds the snapshot it yields.
func (b *Audiobook) prepare(doc *manifest.Document) (*snapshot, error) {
	cache := b.cache.ForBook(b.id, resource.Tags{Album: doc.Metadata.Title, Artist: doc.Metadata.Author.Name})
	v, err := selectVariant(doc, b.selection, cache)
	if err != nil {
		return nil, err
	}
	sp, err := spine.Build(doc.ReadingOrder, v.BuildOptions(doc, b.token))
	if err != nil {
		return nil, err
	}
	return &snapshot{
		doc:      doc,
		variant:  v,
		spine:    sp,
		chapters: chapters.Build(doc.TOC, sp, b.logger),
	}, nil
}

// ID returns the manifest identifier the book was opened with. It never changes.
func (b *Audiobook) ID() string { return b.id }

// Kind returns the construction variant.
func (b *Audiobook) Kind() Kind { return b.state.Load().variant.Kind() }

// Manifest returns the current manifest.
func (b *Audiobook) Manifest() *manifest.Document { return b.state.Load().doc }

// Spine returns the current spine.
func (b *Audiobook) Spine() *spine.Spine { return b.state.Load().spine }

// Chapters returns the chapters of the current spine, sorted by start.
func (b *Audiobook) Chapters() []position.Chapter {
	cs := b.state.Load().chapters
	out := make([]position.Chapter, len(cs))
	copy(out, cs)
	return out
}

// Start returns the position at the beginning of the first track.
func (b *Audiobook) Start() position.Position {
	return position.Start(b.Spine())
}

// DRMStatus returns the current DRM status.
func (b *Audiobook) DRMStatus() drm.Status { return b.status.Load() }

// PlaybackReady reports whether tracks may be decoded and played.
func (b *Audiobook) PlaybackReady() bool { return b.status.Ready() }

// RestoreDRMStatus forces the DRM status, e.g. from a persisted catalog entry. Books without
// DRM verification ignore it and stay Succeeded. A verification still in flight no longer
// applies its result.
func (b *Audiobook) RestoreDRMStatus(s drm.Status) {
	if _, ok := b.state.Load().variant.(verifier); !ok {
		return
	}
	b.status.Set(s)
}

// Update re-selects the variant for doc, rebuilds the spine and chapters, and swaps them in
// atomically. It returns a *SelectionError when doc selects no variant or a different kind of
// variant than the book was opened with. The book keeps its identifier and DRM status. On
// error nothing changes.
func (b *Audiobook) Update(doc *manifest.Document) error {
	if doc == nil {
		return ErrNilManifest
	}
	if doc.Metadata.Identifier != b.id {
		b.logger.Warn("manifest identifier changed on update, keeping original",
			slog.String("new_identifier", doc.Metadata.Identifier))
	}
	snap, err := b.prepare(doc)
	var se *SelectionError
	if errors.As(err, &se) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", b.id, err)
	}
	if was, now := describe(b.state.Load().variant), describe(snap.variant); was != now {
		return &SelectionError{
			Identifier: b.id,
			Reason:     fmt.Sprintf("variant changed from %s to %s", was, now),
			Err:        ErrVariantChanged,
		}
	}
	b.state.Store(snap)
	b.logger.Info("audiobook updated", slog.Int("tracks", snap.spine.Len()))
	return nil
}
