// Package objectstore stores uploaded media behind an opaque key.
package objectstore

import (
	"context"
	"io"
)

// Store saves and serves binary objects such as listing images
type Store interface {
	Put(ctx context.Context, prefix, mimeType string, r io.Reader) (key string, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// ImageExtensions maps accepted image MIME types to file extensions
var ImageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// MimeTypeForExt is the inverse of ImageExtensions, defaulting to octet-stream
func MimeTypeForExt(ext string) string {
	for mime, e := range ImageExtensions {
		if e == ext {
			return mime
		}
	}
	if ext == ".jpeg" {
		return "image/jpeg"
	}
	return "application/octet-stream"
}
