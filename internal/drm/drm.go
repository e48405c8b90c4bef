package drm

import "context"

// Scheme identifiers declared in metadata.encrypted.scheme.
const (
	SchemeFindaway  = "http://librarysimplified.org/terms/drm/scheme/FAE"
	SchemeFeedbooks = "http://www.feedbooks.com/audiobooks/access-restriction"
)

// Decryptor is an externally supplied decryption capability, for example an LCP library.
type Decryptor interface {
	Decrypt(ctx context.Context, src, dst string) error
}

// LicenseVerifier is optionally implemented by a Decryptor that can validate its license
// before any resource is decrypted.
type LicenseVerifier interface {
	VerifyLicense(ctx context.Context) error
}

// DecryptorFunc adapts a function to the Decryptor interface.
type DecryptorFunc func(ctx context.Context, src, dst string) error

func (f DecryptorFunc) Decrypt(ctx context.Context, src, dst string) error {
	return f(ctx, src, dst)
}
