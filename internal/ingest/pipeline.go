// Package ingest runs an upload through policy, validation, deduplication,
// transcoding and persistence.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/princekumarofficial/gallery-service/internal/services/media"
	"github.com/princekumarofficial/gallery-service/internal/storage"
	"github.com/princekumarofficial/gallery-service/internal/transcode"
	"github.com/princekumarofficial/gallery-service/internal/types"
	mediaTypes "github.com/princekumarofficial/gallery-service/internal/types/media"
	"github.com/princekumarofficial/gallery-service/internal/types/users"
)

// Refunder hands a consumed admission slot back
type Refunder interface {
	Refund(ctx context.Context, key string) error
}

type Transcoder interface {
	Derive(data []byte) (transcode.Derivatives, error)
}

type IDGenerator interface {
	New() (string, error)
}

type Publisher interface {
	PublishImageCreated(event *types.ImageCreatedEvent) error
}

// Deps are the collaborators of a Service. Publisher may be nil.
type Deps struct {
	Rules         Rules
	PublicBaseURL string
	Limiter       Refunder
	Index         Index
	Transcoder    Transcoder
	Objects       media.ObjectStore
	Images        storage.Storage
	IDs           IDGenerator
	Publisher     Publisher
}

type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	return &Service{deps: deps}
}

// Result is a successful ingestion
type Result struct {
	Response mediaTypes.UploadResponse
	// Location is the site-relative path of the main rendition
	Location string
}

// CheckPolicy refunds the caller's admission slot exactly once when uploads are
// closed to them. It performs no other I/O.
func (s *Service) CheckPolicy(ctx context.Context, identity users.Identity, admissionKey string) error {
	if s.deps.Rules.Permits(identity) {
		return nil
	}

	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.Refund(ctx, admissionKey); err != nil {
			slog.Warn("Failed to refund rate limit slot",
				slog.String("key", admissionKey),
				slog.String("error", err.Error()))
		}
	}

	return newError(PolicyDenied, ErrUploadsDisabled)
}

// Ingest runs the full pipeline for one upload. Every stage aborts the rest on error.
func (s *Service) Ingest(ctx context.Context, req UploadRequest) (*Result, error) {
	if err := s.CheckPolicy(ctx, req.Identity, req.AdmissionKey); err != nil {
		return nil, err
	}

	v, err := s.deps.Rules.Validate(req)
	if err != nil {
		return nil, err
	}

	fingerprint := Fingerprint(v.Data)

	existingID, found, err := s.deps.Index.Lookup(ctx, fingerprint)
	if err != nil {
		slog.Error("Fingerprint lookup failed", slog.String("error", err.Error()))
		return nil, serverError(PersistenceFailure, ErrPersistenceFailure, err)
	}
	if found {
		return nil, &DuplicateError{ExistingID: existingID}
	}

	derivatives, err := s.deps.Transcoder.Derive(v.Data)
	if err != nil {
		slog.Error("Failed to transcode image",
			slog.String("uploader_id", v.Uploader.ID),
			slog.String("error", err.Error()))
		return nil, serverError(TranscodeFailure, ErrTranscodeFailure, err)
	}

	img, err := s.persist(ctx, v, fingerprint, derivatives)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Images.IncrementUploads(ctx, img.Uploader); err != nil {
		slog.Warn("Failed to increment upload counter",
			slog.String("user_id", img.Uploader.ID),
			slog.String("error", err.Error()))
	}

	s.deps.Index.Remember(ctx, fingerprint, img.ID)

	res := &Result{
		Response: mediaTypes.UploadResponse{
			Image:    img.Summary(),
			ImageURL: media.ImageURL(s.deps.PublicBaseURL, img.ID),
			PostURL:  media.PostURL(s.deps.PublicBaseURL, img.ID),
		},
		Location: media.ImagePath(img.ID),
	}

	s.publish(img, res)

	slog.Info("Image ingested",
		slog.String("image_id", img.ID),
		slog.String("uploader_id", img.Uploader.ID))

	return res, nil
}

// idAttempts bounds how many ids persist draws when the record store reports an id collision
const idAttempts = 2

// persist stores the upload under a fresh id, drawing a new one after an id collision
func (s *Service) persist(ctx context.Context, v Validated, fingerprint string, d transcode.Derivatives) (*mediaTypes.Image, error) {
	for attempt := 1; ; attempt++ {
		img, err := s.persistOnce(ctx, v, fingerprint, d)
		if attempt < idAttempts && errors.Is(err, storage.ErrDuplicateID) {
			slog.Warn("Image id collision, retrying with a new id", slog.Int("attempt", attempt))
			continue
		}
		return img, err
	}
}

// persistOnce writes both artifacts before the record so a stored record always has
// retrievable artifacts. Any failure removes what was written.
func (s *Service) persistOnce(ctx context.Context, v Validated, fingerprint string, d transcode.Derivatives) (*mediaTypes.Image, error) {
	id, err := s.deps.IDs.New()
	if err != nil {
		slog.Error("Failed to generate image id", slog.String("error", err.Error()))
		return nil, serverError(PersistenceFailure, ErrPersistenceFailure, err)
	}

	thumbKey := media.ThumbnailKey(id)
	imageKey := media.ImageKey(id)

	if err := s.deps.Objects.Put(ctx, thumbKey, d.Thumbnail, media.ContentType); err != nil {
		slog.Error("Failed to store thumbnail", slog.String("key", thumbKey), slog.String("error", err.Error()))
		return nil, serverError(PersistenceFailure, ErrPersistenceFailure, err)
	}

	if err := s.deps.Objects.Put(ctx, imageKey, d.Main, media.ContentType); err != nil {
		slog.Error("Failed to store image", slog.String("key", imageKey), slog.String("error", err.Error()))
		s.discard(ctx, thumbKey)
		return nil, serverError(PersistenceFailure, ErrPersistenceFailure, err)
	}

	img := &mediaTypes.Image{
		ID:           id,
		OriginalHash: fingerprint,
		Uploader:     v.Uploader,
		NSFW:         v.NSFW,
		Artist:       v.Artist,
		Tags:         strings.Join(v.Tags, ","),
		Comments:     []mediaTypes.Comment{},
	}

	err = s.deps.Images.CreateImage(ctx, img)
	if err == nil {
		return img, nil
	}

	s.discard(ctx, thumbKey, imageKey)

	if errors.Is(err, storage.ErrDuplicateFingerprint) {
		winner, findErr := s.deps.Images.FindImageByFingerprint(ctx, fingerprint)
		if findErr == nil {
			return nil, &DuplicateError{ExistingID: winner.ID}
		}
		err = fmt.Errorf("%w; looking up existing image: %v", err, findErr)
	}

	slog.Error("Failed to create image record",
		slog.String("image_id", id),
		slog.String("error", err.Error()))
	return nil, serverError(PersistenceFailure, ErrPersistenceFailure, err)
}

// discard removes artifacts of an upload that will not get a record. It runs even
// when the request context is already done; leftovers are picked up by the sweeper.
func (s *Service) discard(ctx context.Context, keys ...string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	for _, key := range keys {
		if err := s.deps.Objects.Delete(ctx, key); err != nil {
			slog.Error("Failed to delete orphaned artifact",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Service) publish(img *mediaTypes.Image, res *Result) {
	if s.deps.Publisher == nil {
		return
	}

	event := &types.ImageCreatedEvent{
		ImageID:    img.ID,
		UploaderID: img.Uploader.ID,
		ImageURL:   res.Response.ImageURL,
		PostURL:    res.Response.PostURL,
		CreatedAt:  img.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := s.deps.Publisher.PublishImageCreated(event); err != nil {
		slog.Warn("Failed to publish image event",
			slog.String("image_id", img.ID),
			slog.String("error", err.Error()))
	}
}
