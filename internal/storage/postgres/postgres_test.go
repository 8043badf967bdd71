package postgres

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/princekumarofficial/gallery-service/internal/storage"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "fingerprint",
			err:  &pq.Error{Code: uniqueViolation, Constraint: imagesOriginalHashKey},
			want: storage.ErrDuplicateFingerprint,
		},
		{
			name: "id",
			err:  &pq.Error{Code: uniqueViolation, Constraint: imagesPkey},
			want: storage.ErrDuplicateID,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translateError(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestTranslateErrorPassesThroughOthers(t *testing.T) {
	other := &pq.Error{Code: "23503", Constraint: "image_comments_image_id_fkey"}

	got := translateError(other)
	if got != error(other) {
		t.Fatalf("expected the original error, got %v", got)
	}
	if errors.Is(got, storage.ErrDuplicateFingerprint) {
		t.Fatal("foreign key violation must not look like a duplicate")
	}
}
