package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned when an object does not exist
var ErrNotFound = errors.New("object not found")

// Key prefixes of the two derivative renditions
const (
	ThumbnailPrefix = "thumbnail/"
	ImagePrefix     = "image/"

	extension   = ".jpg"
	ContentType = "image/jpeg"
)

// ObjectStore is durable blob storage addressed by key
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ThumbnailKey returns the object key of an image's thumbnail
func ThumbnailKey(imageID string) string {
	return ThumbnailPrefix + imageID + extension
}

// ImageKey returns the object key of an image's main rendition
func ImageKey(imageID string) string {
	return ImagePrefix + imageID + extension
}

// ImageIDFromKey extracts the image id from a derivative key
func ImageIDFromKey(key string) (string, bool) {
	var rest string
	switch {
	case strings.HasPrefix(key, ThumbnailPrefix):
		rest = strings.TrimPrefix(key, ThumbnailPrefix)
	case strings.HasPrefix(key, ImagePrefix):
		rest = strings.TrimPrefix(key, ImagePrefix)
	default:
		return "", false
	}

	if path.Ext(rest) != extension || strings.Contains(rest, "/") {
		return "", false
	}

	id := strings.TrimSuffix(rest, extension)
	return id, id != ""
}

// ImagePath is the site-relative location of the main rendition
func ImagePath(imageID string) string {
	return "/" + ImageKey(imageID)
}

// ImageURL returns the absolute URL of the main rendition
func ImageURL(baseURL, imageID string) string {
	return strings.TrimRight(baseURL, "/") + ImagePath(imageID)
}

// PostURL returns the absolute URL of the image's post page
func PostURL(baseURL, imageID string) string {
	return fmt.Sprintf("%s/post/%s", strings.TrimRight(baseURL, "/"), imageID)
}
