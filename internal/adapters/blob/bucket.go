// Package blob stores captured frames and shared images on local disk and
// hands out public URLs for them.
package blob

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/h2non/filetype"

	// webp frames from browsers that cannot encode jpeg.
	_ "golang.org/x/image/webp"

	"github.com/okian/facepulse/pkg/logger"
	"github.com/okian/facepulse/pkg/metrics"
)

const (
	defaultMaxBytes = 5 << 20
	// MediaPrefix is the URL path the bucket is served under.
	MediaPrefix = "/media/"
)

// Bucket is a directory of image blobs addressed by slash-separated keys.
type Bucket struct {
	dir      string
	baseURL  string
	maxBytes int64
	log      logger.Logger
}

// New creates the bucket directory if needed.
func New(dir, publicBaseURL string, opts ...Option) (*Bucket, error) {
	b := &Bucket{
		dir:      dir,
		baseURL:  strings.TrimRight(publicBaseURL, "/"),
		maxBytes: defaultMaxBytes,
		log:      logger.Get().Named("blob"),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}
	return b, nil
}

// Dir returns the bucket root on disk.
func (b *Bucket) Dir() string { return b.dir }

// MaxBytes returns the upload cap.
func (b *Bucket) MaxBytes() int64 { return b.maxBytes }

// URL returns the public URL of key.
func (b *Bucket) URL(key string) string {
	return b.baseURL + MediaPrefix + key
}

// KeyFromURL is the inverse of URL. It reports false for foreign URLs.
func (b *Bucket) KeyFromURL(u string) (string, bool) {
	key, ok := strings.CutPrefix(u, b.baseURL+MediaPrefix)
	if !ok || validateKey(key) != nil {
		return "", false
	}
	return key, true
}

// Sniff checks that data is an image within the size cap and returns its
// canonical file extension.
func (b *Bucket) Sniff(data []byte) (string, error) {
	if int64(len(data)) > b.maxBytes {
		return "", fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(b.maxBytes)))
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown || !filetype.IsImage(data) {
		return "", ErrNotImage
	}
	return kind.Extension, nil
}

// Put stores data under prefix with a generated name and returns the key
// and public URL.
func (b *Bucket) Put(ctx context.Context, prefix string, data []byte) (string, string, error) {
	ext, err := b.Sniff(data)
	if err != nil {
		metrics.RecordUpload("rejected", len(data))
		return "", "", err
	}
	key := path.Join(prefix, uuid.NewString()+"."+ext)
	u, err := b.Upload(ctx, key, data)
	return key, u, err
}

// Upload writes data under key and returns its public URL. The write is
// atomic: readers never see a partial file.
func (b *Bucket) Upload(ctx context.Context, key string, data []byte) (string, error) {
	if err := validateKey(key); err != nil {
		metrics.RecordUpload("rejected", len(data))
		return "", err
	}
	if _, err := b.Sniff(data); err != nil {
		metrics.RecordUpload("rejected", len(data))
		return "", err
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordUpload("failed", len(data))
		return "", err
	}

	dst := filepath.Join(b.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		metrics.RecordUpload("failed", len(data))
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		metrics.RecordUpload("failed", len(data))
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		metrics.RecordUpload("failed", len(data))
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		metrics.RecordUpload("failed", len(data))
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	metrics.RecordUpload("stored", len(data))
	b.log.Debug(ctx, "blob stored",
		logger.String("key", key),
		logger.String("size", humanize.Bytes(uint64(len(data)))))
	return b.URL(key), nil
}

// Open returns a reader for key.
func (b *Bucket) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(b.dir, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f, err
}

// Load decodes the image behind a public URL or a bare key. It satisfies
// the collage loader contract.
func (b *Bucket) Load(ctx context.Context, ref string) (image.Image, error) {
	key := ref
	if k, ok := b.KeyFromURL(ref); ok {
		key = k
	}
	rc, err := b.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return imaging.Decode(rc, imaging.AutoOrientation(true))
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || path.Clean(key) != key || !filepath.IsLocal(filepath.FromSlash(key)) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
