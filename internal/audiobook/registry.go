package audiobook

import (
	"context"
	"slices"
	"sync"

	"github.com/yuanying/audiobook/internal/manifest"
	"github.com/yuanying/audiobook/internal/spine"
)

// Handler is the DRM integration behind a delegated scheme such as Findaway.
type Handler interface {
	// Resource returns the handle for one reading-order item.
	Resource(item manifest.ReadingOrderItem, token string) (spine.Resource, error)
	// Verify checks that the spine may be played.
	Verify(ctx context.Context, sp *spine.Spine) error
}

// HandlerFunc constructs the Handler for one manifest.
type HandlerFunc func(doc *manifest.Document) (Handler, error)

// Registry maps encryption scheme identifiers to handler constructors. It is populated at
// startup by whichever DRM integrations are linked in.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// DefaultRegistry is consulted when Options.Registry is nil.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register installs fn for scheme, replacing any previous entry. It panics if fn is nil.
func (r *Registry) Register(scheme string, fn HandlerFunc) {
	if fn == nil {
		panic("audiobook: Register handler is nil for " + scheme)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[scheme] = fn
}

// Lookup returns the constructor registered for scheme.
func (r *Registry) Lookup(scheme string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[scheme]
	return fn, ok
}

// Schemes lists the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for s := range r.handlers {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Register installs fn in DefaultRegistry.
func Register(scheme string, fn HandlerFunc) {
	DefaultRegistry.Register(scheme, fn)
}
