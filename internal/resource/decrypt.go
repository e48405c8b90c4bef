package resource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/yuanying/audiobook/internal/drm"
)

// DecryptingHandle fetches an encrypted track and keeps a decrypted copy beside it.
type DecryptingHandle struct {
	*Handle
	decryptor drm.Decryptor
}

// NewDecryptingHandle wraps h so that Fetch returns the plaintext path.
func NewDecryptingHandle(h *Handle, d drm.Decryptor) *DecryptingHandle {
	return &DecryptingHandle{Handle: h, decryptor: d}
}

// PlainPath is where the decrypted file is written.
func (d *DecryptingHandle) PlainPath() string {
	return d.Handle.Path() + ".plain"
}

func (d *DecryptingHandle) decrypted() bool {
	info, err := os.Stat(d.PlainPath())
	return err == nil && info.Mode().IsRegular()
}

// Fetch downloads the encrypted file if needed and decrypts it once. Concurrent fetches, across
// processes, are serialized by a lock file, and the plaintext only appears under PlainPath once
// decryption has completed.
func (d *DecryptingHandle) Fetch(ctx context.Context) (string, error) {
	plain := d.PlainPath()
	if d.decrypted() {
		return plain, nil
	}
	src, err := d.Handle.Fetch(ctx)
	if err != nil {
		return "", err
	}

	lock, err := acquire(ctx, plain, d.Href())
	if err != nil {
		return "", err
	}
	defer lock.Unlock()

	if d.decrypted() {
		return plain, nil
	}
	if err := d.decrypt(ctx, src, plain); err != nil {
		return "", err
	}
	return plain, nil
}

func (d *DecryptingHandle) decrypt(ctx context.Context, src, plain string) error {
	tmp, err := os.CreateTemp(filepath.Dir(plain), ".decrypt-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	if err := d.decryptor.Decrypt(ctx, src, tmpName); err != nil {
		return fmt.Errorf("decrypt %s: %w", d.Href(), err)
	}
	if err := os.Rename(tmpName, plain); err != nil {
		return fmt.Errorf("store decrypted %s: %w", d.Href(), err)
	}
	return nil
}

// Delete removes both the encrypted and decrypted copies.
func (d *DecryptingHandle) Delete(ctx context.Context) error {
	var errs []error
	if err := d.Handle.Delete(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, p := range []string{d.PlainPath(), d.PlainPath() + ".lock"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("delete decrypted %s: %w", d.Href(), err))
		}
	}
	return errors.Join(errs...)
}
