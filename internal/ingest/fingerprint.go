package ingest

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/princekumarofficial/gallery-service/internal/storage"
	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns the lowercase hex BLAKE2b-256 digest of the original bytes
func Fingerprint(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Index maps fingerprints to the id of the image already holding them.
// A hit is advisory; the record store's unique constraint has the final word.
type Index interface {
	Lookup(ctx context.Context, fingerprint string) (id string, found bool, err error)
	Remember(ctx context.Context, fingerprint, id string)
}

// StoreIndex answers lookups straight from the record store
type StoreIndex struct {
	store storage.Storage
}

func NewStoreIndex(store storage.Storage) *StoreIndex {
	return &StoreIndex{store: store}
}

func (i *StoreIndex) Lookup(ctx context.Context, fingerprint string) (string, bool, error) {
	img, err := i.store.FindImageByFingerprint(ctx, fingerprint)
	if errors.Is(err, storage.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return img.ID, true, nil
}

func (i *StoreIndex) Remember(context.Context, string, string) {}
