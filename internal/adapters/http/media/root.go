// Package media serves stored capture images from the blob bucket.
package media

import (
	"context"
	"io/fs"
	"net/http"
	"os"

	"github.com/okian/facepulse/internal/adapters/blob"
)

// Register attaches the bucket file server at blob.MediaPrefix. Directory
// listings are not served.
func Register(_ context.Context, mux *http.ServeMux, dir string) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("GET "+blob.MediaPrefix, NewHandler(dir))
}

// NewHandler returns the file server for dir rooted at blob.MediaPrefix.
func NewHandler(dir string) http.Handler {
	files := http.FileServerFS(filesOnly{os.DirFS(dir)})
	return http.StripPrefix(blob.MediaPrefix[:len(blob.MediaPrefix)-1], cacheForever(files))
}

// Keys are random and never rewritten, so responses may be cached.
func cacheForever(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		next.ServeHTTP(w, r)
	})
}

// filesOnly hides directories so the file server never lists them.
type filesOnly struct {
	fsys fs.FS
}

func (f filesOnly) Open(name string) (fs.File, error) {
	file, err := f.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return file, nil
}
