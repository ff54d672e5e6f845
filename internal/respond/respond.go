// Package respond turns a Ready cache entry into an HTTP response.
package respond

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.trai.ch/zerr"

	"github.com/Norgate-AV/glyphd/internal/cache"
	"github.com/Norgate-AV/glyphd/internal/params"
)

// ErrCacheCorruption is returned when a Ready entry lacks the requested artifact
var ErrCacheCorruption = zerr.New("cache entry is missing its artifact")

const (
	// MetricsContentType is sent for .fnt files
	MetricsContentType = "text/plain; charset=utf-8"

	// HeaderKey carries the cache key of the served entry
	HeaderKey = "X-Glyphd-Key"

	// HeaderCache is "hit" or "miss"
	HeaderCache = "X-Glyphd-Cache"
)

// Artifact is an opened cache artifact
type Artifact struct {
	Path        string
	Name        string
	ContentType string
	ETag        string
	Size        int64
	ModTime     time.Time
}

// FileName returns the artifact file name for a format
func FileName(format params.Format) string {
	if format == params.FormatMetrics {
		return cache.MetricsFile
	}

	return cache.ImageFile
}

// Open locates the artifact for format inside dir
func Open(dir string, format params.Format) (*Artifact, error) {
	name := FileName(format)
	path := filepath.Join(dir, name)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, zerr.With(zerr.Wrap(ErrCacheCorruption, "artifact not found"), "path", path)
		}

		return nil, zerr.With(zerr.Wrap(err, "failed to stat artifact"), "path", path)
	}

	if !info.Mode().IsRegular() || info.Size() == 0 {
		return nil, zerr.With(zerr.Wrap(ErrCacheCorruption, "artifact is empty"), "path", path)
	}

	contentType := MetricsContentType
	if format == params.FormatImage {
		mtype, err := mimetype.DetectFile(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to detect content type"), "path", path)
		}

		contentType = mtype.String()
	}

	sum, err := cache.HashFile(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to hash artifact"), "path", path)
	}

	return &Artifact{
		Path:        path,
		Name:        name,
		ContentType: contentType,
		ETag:        `"` + sum + `"`,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
	}, nil
}

// Serve writes the artifact for format from dir. Conditional and range
// requests are handled by http.ServeContent.
func Serve(w http.ResponseWriter, r *http.Request, dir string, format params.Format) error {
	art, err := Open(dir, format)
	if err != nil {
		return err
	}

	f, err := os.Open(art.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return zerr.With(zerr.Wrap(ErrCacheCorruption, "artifact removed"), "path", art.Path)
		}

		return zerr.With(zerr.Wrap(err, "failed to open artifact"), "path", art.Path)
	}
	defer f.Close()

	h := w.Header()
	h.Set("Content-Type", art.ContentType)
	h.Set("ETag", art.ETag)
	h.Set("Content-Disposition", `inline; filename="`+art.Name+`"`)

	http.ServeContent(w, r, art.Name, art.ModTime, f)

	return nil
}

// SetCacheHeaders records the key and whether it was a cache hit
func SetCacheHeaders(w http.ResponseWriter, key string, cached bool) {
	w.Header().Set(HeaderKey, key)

	if cached {
		w.Header().Set(HeaderCache, "hit")
	} else {
		w.Header().Set(HeaderCache, "miss")
	}
}
