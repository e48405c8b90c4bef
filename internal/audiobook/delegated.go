package audiobook

import (
	"context"

	"github.com/yuanying/audiobook/internal/drm"
	"github.com/yuanying/audiobook/internal/manifest"
	"github.com/yuanying/audiobook/internal/spine"
)

// delegatedVariant hands resources and verification to a registered Handler.
type delegatedVariant struct {
	scheme  string
	handler Handler
}

func (v *delegatedVariant) Kind() Kind { return FindawayDelegated }

func (v *delegatedVariant) BuildOptions(doc *manifest.Document, token string) spine.BuildOptions {
	opts := spine.BuildOptions{
		Identifier:  doc.Metadata.Identifier,
		Token:       token,
		NewResource: v.handler.Resource,
		Accept:      acceptAudio,
	}
	if v.scheme == drm.SchemeFindaway {
		opts.OrderKey = findawayOrder
	}
	return opts
}

func (v *delegatedVariant) InitialStatus() drm.Status { return drm.Pending }

func (v *delegatedVariant) Verify(ctx context.Context, sp *spine.Spine) error {
	return v.handler.Verify(ctx, sp)
}
