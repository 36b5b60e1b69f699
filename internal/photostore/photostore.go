package photostore

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("photo not found")

// PhotoStore holds captured image payloads. The offline cache only keeps the
// storage key.
type PhotoStore interface {
	Save(ctx context.Context, jobID, mimeType string, r io.Reader) (storageKey string, err error)
	Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, storageKey string) error
}

var extByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ExtForMIME returns the file extension for an accepted image type. Unknown
// types are treated as JPEG.
func ExtForMIME(mimeType string) string {
	if ext, ok := extByMIME[mimeType]; ok {
		return ext
	}
	return ".jpg"
}

// MIMEForPath is the inverse of ExtForMIME, keyed on the extension of name.
func MIMEForPath(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	for mimeType, e := range extByMIME {
		if e == ext {
			return mimeType
		}
	}
	return "image/jpeg"
}
