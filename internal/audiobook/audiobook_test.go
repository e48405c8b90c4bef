package audiobook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanying/audiobook/internal/drm"
	"github.com/yuanying/audiobook/internal/manifest"
	"github.com/yuanying/audiobook/internal/resource"
	"github.com/yuanying/audiobook/internal/spine"
)

const bookID = "urn:isbn:9780000000001"

func newDoc(hrefs ...string) *manifest.Document {
	items := make([]manifest.ReadingOrderItem, len(hrefs))
	for i, h := range hrefs {
		items[i] = manifest.ReadingOrderItem{Href: h, Type: "audio/mpeg", Duration: time.Minute}
	}
	return &manifest.Document{
		Metadata: manifest.Metadata{
			Identifier: bookID,
			Title:      "The Sample Book",
			Author:     manifest.Contributor{Name: "Jane Writer"},
			Narrator:   manifest.Contributor{Name: "Nick Reader"},
			Language:   "en",
			Duration:   time.Duration(len(hrefs)) * time.Minute,
			License:    "https://example.com/license",
		},
		ReadingOrder: items,
	}
}

type fakeResource struct {
	key     string
	err     error
	deleted atomic.Bool
}

func (r *fakeResource) Key() string { return r.key }

func (r *fakeResource) Delete(context.Context) error {
	if r.err != nil {
		return r.err
	}
	r.deleted.Store(true)
	return nil
}

type blockKey struct{}

type fakeHandler struct {
	deleteErr map[string]error
	verifyErr func() error

	mu      sync.Mutex
	made    []*fakeResource
	verifys atomic.Int32
}

func (h *fakeHandler) Resource(item manifest.ReadingOrderItem, _ string) (spine.Resource, error) {
	r := &fakeResource{key: item.Href, err: h.deleteErr[item.Href]}
	h.mu.Lock()
	h.made = append(h.made, r)
	h.mu.Unlock()
	return r, nil
}

func (h *fakeHandler) Verify(ctx context.Context, _ *spine.Spine) error {
	h.verifys.Add(1)
	if ctx.Value(blockKey{}) != nil {
		<-ctx.Done()
		return ctx.Err()
	}
	if h.verifyErr != nil {
		return h.verifyErr()
	}
	return nil
}

func registryWith(scheme string, h *fakeHandler) *Registry {
	r := NewRegistry()
	r.Register(scheme, func(*manifest.Document) (Handler, error) { return h, nil })
	return r
}

type recorder struct {
	mu      sync.Mutex
	results []drm.Result
}

func (r *recorder) record(res drm.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) all() []drm.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]drm.Result(nil), r.results...)
}

type countingServer struct {
	*httptest.Server
	requests atomic.Int32
}

func newServer(t *testing.T, missing ...string) *countingServer {
	t.Helper()
	s := &countingServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		for _, m := range missing {
			if r.URL.Path == "/"+m {
				http.NotFound(w, r)
				return
			}
		}
		_, _ = w.Write([]byte("audio"))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *countingServer) cache(t *testing.T) *resource.Cache {
	t.Helper()
	base, err := url.Parse(s.URL + "/")
	require.NoError(t, err)
	return &resource.Cache{Dir: t.TempDir(), Base: base, Client: s.Client()}
}

func TestOpen_OpenAccessIsReadyImmediately(t *testing.T) {
	srv := newServer(t)
	rec := &recorder{}
	b, err := Open(context.Background(), newDoc("01.mp3", "02.mp3", "03.mp3"), Options{
		Resources:   srv.cache(t),
		OnDRMStatus: rec.record,
	})
	require.NoError(t, err)

	assert.Equal(t, OpenAccess, b.Kind())
	assert.Equal(t, bookID, b.ID())
	assert.Equal(t, drm.Succeeded, b.DRMStatus())
	assert.True(t, b.PlaybackReady())
	assert.Equal(t, 3, b.Spine().Len())
	assert.Len(t, b.Chapters(), 3)

	start := b.Start()
	assert.Equal(t, 0, start.Index())
	assert.Equal(t, time.Duration(0), start.Offset())

	results := rec.all()
	require.Len(t, results, 1)
	assert.Equal(t, drm.Succeeded, results[0].Status)
	assert.EqualValues(t, 0, srv.requests.Load(), "open access must not perform a check")

	res := <-b.CheckDRM(context.Background())
	assert.Equal(t, drm.Succeeded, res.Status)
	assert.EqualValues(t, 0, srv.requests.Load())
}

func TestOpen_RestoreStatusSkipsVerification(t *testing.T) {
	srv := newServer(t)
	doc := newDoc("01.mp3", "02.mp3")
	doc.FormatType = OverdriveFormatType
	rec := &recorder{}
	failed := drm.Failed

	b, err := Open(context.Background(), doc, Options{
		Resources:     srv.cache(t),
		OnDRMStatus:   rec.record,
		RestoreStatus: &failed,
	})
	require.NoError(t, err)
	assert.Equal(t, drm.Failed, b.DRMStatus())
	assert.False(t, b.PlaybackReady())
	assert.Empty(t, rec.all())
	assert.EqualValues(t, 0, srv.requests.Load())

	res := <-b.CheckDRM(context.Background())
	assert.Equal(t, drm.Succeeded, res.Status)
	assert.True(t, b.PlaybackReady())
}

func TestOpen_RestoreStatusIgnoredWithoutVerification(t *testing.T) {
	srv := newServer(t)
	pending := drm.Pending
	b, err := Open(context.Background(), newDoc("01.mp3"), Options{
		Resources:     srv.cache(t),
		RestoreStatus: &pending,
	})
	require.NoError(t, err)
	assert.Equal(t, drm.Succeeded, b.DRMStatus())
	assert.True(t, b.PlaybackReady())

	b.RestoreDRMStatus(drm.Failed)
	assert.Equal(t, drm.Succeeded, b.DRMStatus())
	res := <-b.CheckDRM(context.Background())
	assert.Equal(t, drm.Succeeded, res.Status)
}

func TestRestoreDRMStatus_SupersedesRunningCheck(t *testing.T) {
	doc := newDoc("01.mp3")
	doc.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFindaway}
	h := &fakeHandler{}
	rec := &recorder{}

	slowCtx, release := context.WithCancel(context.WithValue(context.Background(), blockKey{}, true))
	defer release()
	b, err := Open(slowCtx, doc, Options{Registry: registryWith(drm.SchemeFindaway, h), OnDRMStatus: rec.record})
	require.NoError(t, err)
	assert.Equal(t, drm.Pending, b.DRMStatus())

	b.RestoreDRMStatus(drm.Succeeded)
	release()
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, drm.Failed, rec.all()[0].Status, "the attempt still reports its own outcome")
	assert.Equal(t, drm.Succeeded, b.DRMStatus(), "a check begun before the restore must not apply")
}

func TestOpen_FeedbooksWithoutHandler(t *testing.T) {
	doc := newDoc("01.mp3", "02.mp3")
	doc.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFeedbooks}

	b, err := Open(context.Background(), doc, Options{Registry: NewRegistry()})
	assert.Nil(t, b)
	require.Error(t, err)
	var selErr *SelectionError
	require.ErrorAs(t, err, &selErr)
	assert.ErrorIs(t, err, ErrHandlerNotRegistered)
	assert.Equal(t, bookID, selErr.Identifier)
}

func TestOpen_HandlerConstructorError(t *testing.T) {
	doc := newDoc("01.mp3")
	doc.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFindaway}
	boom := errors.New("missing fulfillment id")
	reg := NewRegistry()
	reg.Register(drm.SchemeFindaway, func(*manifest.Document) (Handler, error) { return nil, boom })

	b, err := Open(context.Background(), doc, Options{Registry: reg})
	assert.Nil(t, b)
	var selErr *SelectionError
	assert.ErrorAs(t, err, &selErr)
	assert.ErrorIs(t, err, boom)
}

func TestOpen_FindawayOrdersByPartAndSequence(t *testing.T) {
	doc := newDoc("c.mp3", "a.mp3", "b.mp3")
	doc.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFindaway}
	doc.ReadingOrder[0].Part, doc.ReadingOrder[0].Sequence = 2, 1
	doc.ReadingOrder[1].Part, doc.ReadingOrder[1].Sequence = 1, 1
	doc.ReadingOrder[2].Part, doc.ReadingOrder[2].Sequence = 1, 2

	h := &fakeHandler{}
	b, err := Open(context.Background(), doc, Options{Registry: registryWith(drm.SchemeFindaway, h)})
	require.NoError(t, err)

	assert.Equal(t, FindawayDelegated, b.Kind())
	var hrefs []string
	for i, tr := range b.Spine().Tracks() {
		assert.Equal(t, i, tr.Index)
		hrefs = append(hrefs, tr.Href)
	}
	assert.Equal(t, []string{"a.mp3", "b.mp3", "c.mp3"}, hrefs)

	require.Eventually(t, b.PlaybackReady, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, h.verifys.Load())
}

func TestOpen_FeedbooksKeepsManifestOrder(t *testing.T) {
	doc := newDoc("c.mp3", "a.mp3")
	doc.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFeedbooks}
	doc.ReadingOrder[0].Part, doc.ReadingOrder[1].Part = 2, 1

	b, err := Open(context.Background(), doc, Options{Registry: registryWith(drm.SchemeFeedbooks, &fakeHandler{})})
	require.NoError(t, err)
	assert.Equal(t, "c.mp3", b.Spine().First().Href)
}

func TestOpen_Precedence(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*manifest.Document)
		opts    Options
		want    Kind
		wantErr error
	}{
		{
			name: "delegated scheme beats overdrive and lcp markers",
			mutate: func(d *manifest.Document) {
				d.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFindaway}
				d.FormatType = OverdriveFormatType
				d.Contexts = []string{LCPContext}
			},
			opts: Options{Registry: registryWith(drm.SchemeFindaway, &fakeHandler{}), Decryptor: drm.DecryptorFunc(nopDecrypt)},
			want: FindawayDelegated,
		},
		{
			name: "overdrive beats lcp context",
			mutate: func(d *manifest.Document) {
				d.FormatType = OverdriveFormatType
				d.Contexts = []string{LCPContext}
			},
			want: Overdrive,
		},
		{
			name:   "lcp context with decryptor",
			mutate: func(d *manifest.Document) { d.Contexts = []string{LCPContext} },
			opts:   Options{Decryptor: drm.DecryptorFunc(nopDecrypt)},
			want:   LCP,
		},
		{
			name: "lcp context listed after another context",
			mutate: func(d *manifest.Document) {
				d.Contexts = []string{"https://example.com/extension.jsonld", LCPContext}
			},
			opts: Options{Decryptor: drm.DecryptorFunc(nopDecrypt)},
			want: LCP,
		},
		{
			name:    "lcp context without decryptor",
			mutate:  func(d *manifest.Document) { d.Contexts = []string{LCPContext} },
			wantErr: ErrDecryptorRequired,
		},
		{
			name: "unknown scheme falls through to open access",
			mutate: func(d *manifest.Document) {
				d.Metadata.Encrypted = &manifest.Encryption{Scheme: "http://example.com/other"}
			},
			want: OpenAccess,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newDoc("01.mp3")
			tt.mutate(doc)
			opts := tt.opts
			opts.Resources = &resource.Cache{Dir: t.TempDir()}

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			b, err := Open(ctx, doc, opts)
			if tt.wantErr != nil {
				assert.Nil(t, b)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Kind())
		})
	}
}

func nopDecrypt(context.Context, string, string) error { return nil }

type verifyingDecryptor struct {
	drm.DecryptorFunc
	err error
}

func (d verifyingDecryptor) VerifyLicense(context.Context) error { return d.err }

func TestOpen_LCP(t *testing.T) {
	t.Run("license verified", func(t *testing.T) {
		doc := newDoc("01.mp3")
		doc.Contexts = []string{LCPContext}
		b, err := Open(context.Background(), doc, Options{
			Decryptor: verifyingDecryptor{DecryptorFunc: nopDecrypt},
			Resources: &resource.Cache{Dir: t.TempDir()},
		})
		require.NoError(t, err)
		assert.IsType(t, &resource.DecryptingHandle{}, b.Spine().First().Resource)
		require.Eventually(t, b.PlaybackReady, time.Second, 5*time.Millisecond)
	})

	t.Run("license rejected", func(t *testing.T) {
		doc := newDoc("01.mp3")
		doc.Contexts = []string{LCPContext}
		rejected := errors.New("license revoked")
		rec := &recorder{}
		b, err := Open(context.Background(), doc, Options{
			Decryptor:   verifyingDecryptor{DecryptorFunc: nopDecrypt, err: rejected},
			Resources:   &resource.Cache{Dir: t.TempDir()},
			OnDRMStatus: rec.record,
		})
		require.NoError(t, err, "verification failure must not prevent construction")
		require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, drm.Failed, b.DRMStatus())
		assert.False(t, b.PlaybackReady())
		assert.ErrorIs(t, rec.all()[0].Err, rejected)
		assert.Equal(t, 1, b.Spine().Len(), "book stays navigable")
	})

	t.Run("decryptor without verifier", func(t *testing.T) {
		doc := newDoc("01.mp3")
		doc.Contexts = []string{LCPContext}
		b, err := Open(context.Background(), doc, Options{
			Decryptor: drm.DecryptorFunc(nopDecrypt),
			Resources: &resource.Cache{Dir: t.TempDir()},
		})
		require.NoError(t, err)
		require.Eventually(t, b.PlaybackReady, time.Second, 5*time.Millisecond)
	})
}

func TestOpen_Overdrive(t *testing.T) {
	t.Run("all tracks reachable", func(t *testing.T) {
		srv := newServer(t)
		doc := newDoc("01.mp3", "02.mp3")
		doc.FormatType = OverdriveFormatType

		b, err := Open(context.Background(), doc, Options{Resources: srv.cache(t)})
		require.NoError(t, err)
		assert.Equal(t, Overdrive, b.Kind())
		require.Eventually(t, b.PlaybackReady, time.Second, 5*time.Millisecond)
		assert.EqualValues(t, 2, srv.requests.Load())
	})

	t.Run("missing track fails verification", func(t *testing.T) {
		srv := newServer(t, "02.mp3")
		doc := newDoc("01.mp3", "02.mp3")
		doc.FormatType = OverdriveFormatType

		b, err := Open(context.Background(), doc, Options{Resources: srv.cache(t)})
		require.NoError(t, err)
		res := <-b.CheckDRM(context.Background())
		assert.Equal(t, drm.Failed, res.Status)
		assert.ErrorIs(t, res.Err, resource.ErrUnavailable)
		assert.NotEmpty(t, res.AttemptID)
		assert.Equal(t, bookID, res.BookID)
		assert.Equal(t, drm.Failed, b.DRMStatus())
	})
}

func TestOpen_SpineBuildFailure(t *testing.T) {
	doc := newDoc("01.mp3", "02.mp3", "03.mp3")
	doc.ReadingOrder[1].Type = "text/html"

	b, err := Open(context.Background(), doc, Options{Resources: &resource.Cache{Dir: t.TempDir()}})
	assert.Nil(t, b)
	assert.ErrorIs(t, err, spine.ErrIncompleteSpine)
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
}

func TestOpen_NilManifest(t *testing.T) {
	_, err := Open(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrNilManifest)
}

func TestOpenBytes(t *testing.T) {
	raw := []byte(`{
	  "metadata": {
	    "identifier": "urn:test:1", "title": "T", "author": "A", "narrator": "N",
	    "language": "en", "duration": 120, "license": "https://example.com/l"
	  },
	  "readingOrder": [{"href": "01.mp3", "type": "audio/mpeg", "duration": 60}, {"href": "02.mp3", "duration": 60}],
	  "toc": [{"href": "02.mp3#t=30", "title": "Halfway"}]
	}`)
	b, err := OpenBytes(context.Background(), raw, Options{Resources: &resource.Cache{Dir: t.TempDir()}})
	require.NoError(t, err)
	assert.Equal(t, "urn:test:1", b.ID())
	require.Len(t, b.Chapters(), 1)
	assert.Equal(t, "Halfway", b.Chapters()[0].Title)
	assert.Equal(t, 30*time.Second, b.Chapters()[0].Duration)

	_, err = OpenBytes(context.Background(), []byte(`{"metadata": {}}`), Options{})
	assert.ErrorIs(t, err, manifest.ErrMissingField)
}

func TestCheckDRM_Retrigger(t *testing.T) {
	doc := newDoc("01.mp3")
	doc.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFindaway}
	var calls atomic.Int32
	h := &fakeHandler{verifyErr: func() error {
		if calls.Add(1) == 1 {
			return errors.New("entitlement not yet granted")
		}
		return nil
	}}
	rec := &recorder{}
	b, err := Open(context.Background(), doc, Options{Registry: registryWith(drm.SchemeFindaway, h), OnDRMStatus: rec.record})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.DRMStatus() == drm.Failed }, time.Second, 5*time.Millisecond)

	res := <-b.CheckDRM(context.Background())
	assert.Equal(t, drm.Succeeded, res.Status)
	assert.True(t, b.PlaybackReady())

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)
	results := rec.all()
	assert.NotEqual(t, results[0].AttemptID, results[1].AttemptID)
}

func TestCheckDRM_SupersededAttemptIsIgnored(t *testing.T) {
	doc := newDoc("01.mp3")
	doc.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFindaway}
	h := &fakeHandler{}

	slowCtx, release := context.WithCancel(context.WithValue(context.Background(), blockKey{}, true))
	defer release()
	b, err := Open(slowCtx, doc, Options{Registry: registryWith(drm.SchemeFindaway, h)})
	require.NoError(t, err)
	assert.Equal(t, drm.Pending, b.DRMStatus())

	res := <-b.CheckDRM(context.Background())
	assert.Equal(t, drm.Succeeded, res.Status)

	release()
	require.Eventually(t, func() bool { return h.verifys.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, drm.Succeeded, b.DRMStatus(), "late failure of a superseded attempt must not apply")
}

func TestCheckDRM_ChannelDeliversExactlyOnce(t *testing.T) {
	doc := newDoc("01.mp3")
	doc.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFindaway}
	b, err := Open(context.Background(), doc, Options{Registry: registryWith(drm.SchemeFindaway, &fakeHandler{})})
	require.NoError(t, err)

	ch := b.CheckDRM(context.Background())
	_, ok := <-ch
	assert.True(t, ok)
	_, ok = <-ch
	assert.False(t, ok, "channel must be closed after the single result")
}

func TestUpdate_PreservesIdentifierAndPositions(t *testing.T) {
	b, err := Open(context.Background(), newDoc("01.mp3", "02.mp3", "03.mp3"), Options{Resources: &resource.Cache{Dir: t.TempDir()}})
	require.NoError(t, err)

	before, boundary := b.Start().Advance(90 * time.Second)
	require.False(t, boundary)
	oldSpine := b.Spine()

	next := newDoc("01.mp3", "02.mp3", "03.mp3")
	next.Metadata.Identifier = "urn:isbn:changed"
	next.Metadata.Title = "Revised"
	next.TOC = []manifest.TOCItem{
		{Href: "01.mp3", Title: "One"},
		{Href: "02.mp3#t=15", Title: "Two"},
	}
	require.NoError(t, b.Update(next))

	assert.Equal(t, bookID, b.ID())
	assert.Equal(t, "Revised", b.Manifest().Metadata.Title)
	assert.NotSame(t, oldSpine, b.Spine())

	after, err := before.Rebase(b.Spine())
	require.NoError(t, err)
	assert.True(t, after.Equal(before))
	assert.Same(t, b.Spine(), after.Spine())
	assert.Same(t, b.Spine().Track(1), after.Track())

	ch, ok := after.ChapterIn(b.Chapters())
	require.True(t, ok)
	assert.Equal(t, "Two", ch.Title)
	ch, ok = before.ChapterIn(b.Chapters())
	require.True(t, ok, "a pre-update position compares structurally against new chapters")
	assert.Equal(t, "Two", ch.Title)
}

func TestUpdate_FailureKeepsState(t *testing.T) {
	b, err := Open(context.Background(), newDoc("01.mp3", "02.mp3"), Options{Resources: &resource.Cache{Dir: t.TempDir()}})
	require.NoError(t, err)
	sp := b.Spine()

	bad := newDoc("01.mp3")
	bad.ReadingOrder[0].Type = "video/mp4"
	err = b.Update(bad)
	assert.ErrorIs(t, err, spine.ErrEmptySpine)
	assert.Same(t, sp, b.Spine())
	assert.ErrorIs(t, b.Update(nil), ErrNilManifest)
}

func TestUpdate_KeepsDRMStatus(t *testing.T) {
	doc := newDoc("01.mp3")
	doc.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFindaway}
	h := &fakeHandler{verifyErr: func() error { return errors.New("denied") }}
	b, err := Open(context.Background(), doc, Options{Registry: registryWith(drm.SchemeFindaway, h)})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.DRMStatus() == drm.Failed }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Update(doc))
	assert.Equal(t, drm.Failed, b.DRMStatus())
	assert.EqualValues(t, 1, h.verifys.Load())
}

func TestUpdate_UnresolvableSchemeKeepsState(t *testing.T) {
	b, err := Open(context.Background(), newDoc("01.mp3", "02.mp3"), Options{
		Registry:  NewRegistry(),
		Resources: &resource.Cache{Dir: t.TempDir()},
	})
	require.NoError(t, err)
	sp := b.Spine()

	next := newDoc("01.mp3", "02.mp3")
	next.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFindaway}
	err = b.Update(next)

	var se *SelectionError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, ErrHandlerNotRegistered)
	assert.Equal(t, OpenAccess, b.Kind())
	assert.Same(t, sp, b.Spine())
	assert.Nil(t, b.Manifest().Metadata.Encrypted)
}

func TestUpdate_RejectsVariantChange(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		open   func(*manifest.Document)
		update func(*manifest.Document)
		want   Kind
	}{
		{
			name:   "open access to overdrive",
			update: func(d *manifest.Document) { d.FormatType = OverdriveFormatType },
			want:   OpenAccess,
		},
		{
			name:   "lcp loses its context",
			opts:   Options{Decryptor: drm.DecryptorFunc(nopDecrypt)},
			open:   func(d *manifest.Document) { d.Contexts = []string{LCPContext} },
			update: func(d *manifest.Document) { d.Contexts = nil },
			want:   LCP,
		},
		{
			name: "delegated scheme switch",
			opts: Options{Registry: func() *Registry {
				r := registryWith(drm.SchemeFindaway, &fakeHandler{})
				r.Register(drm.SchemeFeedbooks, func(*manifest.Document) (Handler, error) { return &fakeHandler{}, nil })
				return r
			}()},
			open: func(d *manifest.Document) {
				d.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFindaway}
			},
			update: func(d *manifest.Document) {
				d.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFeedbooks}
			},
			want: FindawayDelegated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newDoc("01.mp3")
			if tt.open != nil {
				tt.open(doc)
			}
			opts := tt.opts
			opts.Resources = &resource.Cache{Dir: t.TempDir()}
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			b, err := Open(ctx, doc, opts)
			require.NoError(t, err)
			sp := b.Spine()

			next := newDoc("01.mp3", "02.mp3")
			if tt.open != nil {
				tt.open(next)
			}
			tt.update(next)
			err = b.Update(next)

			var se *SelectionError
			require.ErrorAs(t, err, &se)
			assert.ErrorIs(t, err, ErrVariantChanged)
			assert.Equal(t, bookID, se.Identifier)
			assert.Equal(t, tt.want, b.Kind())
			assert.Same(t, sp, b.Spine())
		})
	}
}

func TestUpdate_SameVariantRebuildsResources(t *testing.T) {
	doc := newDoc("01.mp3")
	doc.Contexts = []string{LCPContext}
	b, err := Open(context.Background(), doc, Options{
		Decryptor: drm.DecryptorFunc(nopDecrypt),
		Resources: &resource.Cache{Dir: t.TempDir()},
	})
	require.NoError(t, err)

	next := newDoc("01.mp3", "02.mp3")
	next.Contexts = []string{"https://example.com/extension.jsonld", LCPContext}
	require.NoError(t, b.Update(next))
	assert.Equal(t, LCP, b.Kind())
	assert.Equal(t, 2, b.Spine().Len())
	assert.IsType(t, &resource.DecryptingHandle{}, b.Spine().Last().Resource)
}

func TestDownload(t *testing.T) {
	t.Run("open access", func(t *testing.T) {
		srv := newServer(t)
		b, err := Open(context.Background(), newDoc("01.mp3", "02.mp3"), Options{Resources: srv.cache(t)})
		require.NoError(t, err)

		paths, err := b.Download(context.Background())
		require.NoError(t, err)
		require.Len(t, paths, 2)
		for _, p := range paths {
			assert.FileExists(t, p)
		}
		assert.EqualValues(t, 2, srv.requests.Load())

		_, err = b.Download(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 2, srv.requests.Load(), "cached tracks are not fetched again")
	})

	t.Run("lcp tracks are decrypted", func(t *testing.T) {
		srv := newServer(t)
		doc := newDoc("01.mp3", "02.mp3")
		doc.Contexts = []string{LCPContext}
		var decrypted atomic.Int32
		dec := drm.DecryptorFunc(func(_ context.Context, src, dst string) error {
			decrypted.Add(1)
			data, err := os.ReadFile(src)
			if err != nil {
				return err
			}
			return os.WriteFile(dst, append([]byte("plain:"), data...), 0o644)
		})
		b, err := Open(context.Background(), doc, Options{Decryptor: dec, Resources: srv.cache(t)})
		require.NoError(t, err)
		require.Eventually(t, b.PlaybackReady, time.Second, 5*time.Millisecond)

		paths, err := b.Download(context.Background())
		require.NoError(t, err)
		require.Len(t, paths, 2)
		assert.EqualValues(t, 2, decrypted.Load())
		data, err := os.ReadFile(paths[0])
		require.NoError(t, err)
		assert.Equal(t, "plain:", string(data[:6]))
		assert.Equal(t, b.Spine().First().Resource.(*resource.DecryptingHandle).PlainPath(), paths[0])
	})

	t.Run("refused until verified", func(t *testing.T) {
		srv := newServer(t)
		doc := newDoc("01.mp3")
		doc.FormatType = OverdriveFormatType
		failed := drm.Failed
		b, err := Open(context.Background(), doc, Options{Resources: srv.cache(t), RestoreStatus: &failed})
		require.NoError(t, err)

		_, err = b.Download(context.Background())
		assert.ErrorIs(t, err, ErrNotReady)
		assert.EqualValues(t, 0, srv.requests.Load())
	})

	t.Run("delegated resources without local storage", func(t *testing.T) {
		doc := newDoc("01.mp3")
		doc.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFindaway}
		b, err := Open(context.Background(), doc, Options{Registry: registryWith(drm.SchemeFindaway, &fakeHandler{})})
		require.NoError(t, err)
		require.Eventually(t, b.PlaybackReady, time.Second, 5*time.Millisecond)

		_, err = b.Download(context.Background())
		assert.ErrorIs(t, err, ErrNotDownloadable)
	})
}

func TestDeleteLocalContent_ReportsFailuresWithoutRollback(t *testing.T) {
	doc := newDoc("01.mp3", "02.mp3", "03.mp3")
	doc.Metadata.Encrypted = &manifest.Encryption{Scheme: drm.SchemeFindaway}
	boom := errors.New("permission denied")
	h := &fakeHandler{deleteErr: map[string]error{"02.mp3": boom}}
	b, err := Open(context.Background(), doc, Options{Registry: registryWith(drm.SchemeFindaway, h)})
	require.NoError(t, err)

	err = b.DeleteLocalContent(context.Background())
	var delErr *DeletionError
	require.ErrorAs(t, err, &delErr)
	require.Len(t, delErr.Failures, 1)
	assert.Equal(t, 1, delErr.Failures[0].Index)
	assert.Equal(t, "02.mp3", delErr.Failures[0].Href)
	assert.ErrorIs(t, err, boom)

	for _, r := range h.made {
		assert.Equal(t, r.err == nil, r.deleted.Load(), r.key)
	}
}

func TestDeleteLocalContent_RemovesDownloads(t *testing.T) {
	srv := newServer(t)
	b, err := Open(context.Background(), newDoc("01.mp3", "02.mp3"), Options{Resources: srv.cache(t)})
	require.NoError(t, err)

	var paths []string
	for _, tr := range b.Spine().Tracks() {
		h, ok := tr.Resource.(*resource.Handle)
		require.True(t, ok)
		p, err := h.Fetch(context.Background())
		require.NoError(t, err)
		paths = append(paths, p)
	}

	require.NoError(t, b.DeleteLocalContent(context.Background()))
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}
}

func TestChaptersReturnsCopy(t *testing.T) {
	b, err := Open(context.Background(), newDoc("01.mp3"), Options{Resources: &resource.Cache{Dir: t.TempDir()}})
	require.NoError(t, err)
	cs := b.Chapters()
	cs[0].Title = "mutated"
	assert.NotEqual(t, "mutated", b.Chapters()[0].Title)
}
