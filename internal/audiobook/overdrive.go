package audiobook

import (
	"context"
	"fmt"

	"github.com/yuanying/audiobook/internal/drm"
	"github.com/yuanying/audiobook/internal/manifest"
	"github.com/yuanying/audiobook/internal/resource"
	"github.com/yuanying/audiobook/internal/spine"
)

// prober is implemented by resources that can check availability without downloading.
type prober interface {
	Probe(ctx context.Context) error
}

// overdriveVariant streams from time-limited Overdrive URLs. Verification probes every track.
type overdriveVariant struct {
	cache *resource.Cache
}

func (v *overdriveVariant) Kind() Kind { return Overdrive }

func (v *overdriveVariant) BuildOptions(doc *manifest.Document, token string) spine.BuildOptions {
	return spine.BuildOptions{
		Identifier:  doc.Metadata.Identifier,
		Token:       token,
		NewResource: v.cache.Factory(),
		Accept:      acceptAudio,
	}
}

func (v *overdriveVariant) InitialStatus() drm.Status { return drm.Pending }

func (v *overdriveVariant) Verify(ctx context.Context, sp *spine.Spine) error {
	for _, track := range sp.Tracks() {
		p, ok := track.Resource.(prober)
		if !ok {
			return fmt.Errorf("track %d: resource cannot be probed", track.Index)
		}
		if err := p.Probe(ctx); err != nil {
			return fmt.Errorf("track %d: %w", track.Index, err)
		}
	}
	return nil
}
