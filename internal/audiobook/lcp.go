package audiobook

import (
	"context"

	"github.com/yuanying/audiobook/internal/drm"
	"github.com/yuanying/audiobook/internal/manifest"
	"github.com/yuanying/audiobook/internal/resource"
	"github.com/yuanying/audiobook/internal/spine"
)

// lcpVariant decrypts each track with the caller's decryptor after download.
type lcpVariant struct {
	cache     *resource.Cache
	decryptor drm.Decryptor
}

func (v *lcpVariant) Kind() Kind { return LCP }

func (v *lcpVariant) BuildOptions(doc *manifest.Document, token string) spine.BuildOptions {
	return spine.BuildOptions{
		Identifier: doc.Metadata.Identifier,
		Token:      token,
		NewResource: func(item manifest.ReadingOrderItem, token string) (spine.Resource, error) {
			h, err := v.cache.Handle(item, token)
			if err != nil {
				return nil, err
			}
			return resource.NewDecryptingHandle(h, v.decryptor), nil
		},
		Accept: acceptAudio,
	}
}

func (v *lcpVariant) InitialStatus() drm.Status { return drm.Pending }

// Verify validates the license when the decryptor supports it.
func (v *lcpVariant) Verify(ctx context.Context, _ *spine.Spine) error {
	if lv, ok := v.decryptor.(drm.LicenseVerifier); ok {
		return lv.VerifyLicense(ctx)
	}
	return nil
}
