// Package storage holds the avatar object store. The bucket name is fixed
// and checked at startup; nothing probes for alternatives at runtime.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	appErr "github.com/foundernet/engine/pkg/errors"
)

// AvatarBucket is the one container avatars are written to.
const AvatarBucket = "avatars"

// Bucket is a flat key/value object container.
type Bucket interface {
	Name() string
	// Put stores r under key, replacing any previous object, and returns the
	// object's public path.
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object whose key starts with prefix/.
	DeletePrefix(ctx context.Context, prefix string) error
	// KeyOf maps a public path returned by Put back to its key.
	KeyOf(publicPath string) (string, bool)
}

// LocalBucket stores objects as files under Root/Name.
type LocalBucket struct {
	Root string
	name string
	// PublicPrefix is prepended to keys to build the returned path.
	PublicPrefix string
}

// NewLocalBucket returns a bucket rooted at root/name. It does not touch the
// filesystem; call Verify or Ensure.
func NewLocalBucket(root, name string) *LocalBucket {
	return &LocalBucket{
		Root:         root,
		name:         name,
		PublicPrefix: "/storage/" + name + "/",
	}
}

func (b *LocalBucket) Name() string { return b.name }

// Dir is the directory holding the bucket's objects.
func (b *LocalBucket) Dir() string { return filepath.Join(b.Root, b.name) }

func (b *LocalBucket) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || strings.HasSuffix(key, "/") || clean == "/" {
		return "", appErr.Invalid("object key must name a file")
	}
	return filepath.Join(b.Dir(), filepath.FromSlash(clean)), nil
}

func (b *LocalBucket) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := b.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "create object directory failed")
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "create object failed")
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", appErr.Wrap(err, appErr.CodeInternal, "write object failed")
	}
	if err := tmp.Close(); err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "write object failed")
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", appErr.Wrap(err, appErr.CodeInternal, "commit object failed")
	}
	return b.PublicPrefix + strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+key)), "/"), nil
}

func (b *LocalBucket) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, appErr.New(appErr.CodeNotFound, fmt.Sprintf("object %s not found", key))
	}
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "open object failed")
	}
	return f, nil
}

func (b *LocalBucket) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return appErr.New(appErr.CodeNotFound, fmt.Sprintf("object %s not found", key))
	}
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "delete object failed")
	}
	return nil
}

// DeletePrefix removes the directory holding prefix's objects. A missing
// prefix is not an error.
func (b *LocalBucket) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean := filepath.Clean("/" + prefix)
	if clean == "/" {
		return appErr.Invalid("object prefix must not be empty")
	}
	if err := os.RemoveAll(filepath.Join(b.Dir(), filepath.FromSlash(clean))); err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "delete objects failed")
	}
	return nil
}

func (b *LocalBucket) KeyOf(publicPath string) (string, bool) {
	key, ok := strings.CutPrefix(publicPath, b.PublicPrefix)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// Verify fails unless the bucket directory exists. Servers call it before
// accepting traffic.
func (b *LocalBucket) Verify() error {
	fi, err := os.Stat(b.Dir())
	if err != nil {
		return appErr.Wrap(err, appErr.CodeUnavailable, fmt.Sprintf("bucket %q is missing", b.name)).
			WithMeta("dir", b.Dir())
	}
	if !fi.IsDir() {
		return appErr.New(appErr.CodeUnavailable, fmt.Sprintf("bucket %q is not a directory", b.name)).
			WithMeta("dir", b.Dir())
	}
	return nil
}

// Ensure creates the bucket directory. Only migrations call it.
func (b *LocalBucket) Ensure() error {
	if err := os.MkdirAll(b.Dir(), 0o755); err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, fmt.Sprintf("create bucket %q failed", b.name))
	}
	return nil
}
