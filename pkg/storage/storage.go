// Package storage stores presenter photos in a local directory or an S3 bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// FolderPhotos is the key prefix for presenter photos.
const FolderPhotos = "presenters"

var (
	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrUnsafeKey is returned for absolute keys or keys that escape the store root.
	ErrUnsafeKey = errors.New("unsafe object key")
)

// AllowedPhotoTypes maps accepted photo MIME types to the stored file extension.
var AllowedPhotoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ObjectStore saves and opens objects by key.
type ObjectStore interface {
	Save(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	// Open returns the object body and its content type. The caller closes the body.
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// PhotoKey returns the object key for a presenter photo: presenters/{registration_id}/{name}{ext}.
func PhotoKey(registrationID, name, ext string) string {
	return path.Join(FolderPhotos, registrationID, path.Base(name)+ext)
}

// SafeKey reports whether key is relative and stays inside the store root.
func SafeKey(key string) bool {
	if key == "" || strings.ContainsRune(key, 0) || strings.Contains(key, `\`) {
		return false
	}
	if path.IsAbs(key) || strings.HasPrefix(key, "~") {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

// ContentTypeForKey returns the MIME type implied by a photo key's extension.
func ContentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}
