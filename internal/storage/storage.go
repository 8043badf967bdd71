package storage

import (
	"context"
	"errors"

	"github.com/princekumarofficial/gallery-service/internal/types/media"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateFingerprint is returned by CreateImage when another record already
	// holds the same original hash
	ErrDuplicateFingerprint = errors.New("duplicate image fingerprint")
	ErrDuplicateID          = errors.New("duplicate image id")
)

type Storage interface {
	CreateImage(ctx context.Context, img *media.Image) error
	FindImageByFingerprint(ctx context.Context, fingerprint string) (*media.Image, error)
	ImageExists(ctx context.Context, id string) (bool, error)
	IncrementUploads(ctx context.Context, uploader media.Uploader) error
}
