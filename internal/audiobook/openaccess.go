package audiobook

import (
	"github.com/yuanying/audiobook/internal/drm"
	"github.com/yuanying/audiobook/internal/manifest"
	"github.com/yuanying/audiobook/internal/resource"
	"github.com/yuanying/audiobook/internal/spine"
)

// openAccessVariant plays unprotected files; the token, if any, is sent with every fetch.
type openAccessVariant struct {
	cache *resource.Cache
}

func (v *openAccessVariant) Kind() Kind { return OpenAccess }

func (v *openAccessVariant) BuildOptions(doc *manifest.Document, token string) spine.BuildOptions {
	return spine.BuildOptions{
		Identifier:  doc.Metadata.Identifier,
		Token:       token,
		NewResource: v.cache.Factory(),
		Accept:      acceptAudio,
	}
}

func (v *openAccessVariant) InitialStatus() drm.Status { return drm.Succeeded }
