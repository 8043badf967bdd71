package images

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/princekumarofficial/gallery-service/internal/http/middleware"
	"github.com/princekumarofficial/gallery-service/internal/ingest"
	"github.com/princekumarofficial/gallery-service/internal/utils/response"
)

// FormField is the multipart field carrying the image
const FormField = "image"

// formOverhead leaves room for the text fields and multipart framing next to the image
const formOverhead = 64 << 10

type ImageHandlers struct {
	service        *ingest.Service
	maxUploadBytes int64
}

// NewImageHandlers creates a new image handlers instance
func NewImageHandlers(service *ingest.Service, maxUploadBytes int64) *ImageHandlers {
	return &ImageHandlers{
		service:        service,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload ingests one image
// @Summary Upload an image
// @Description Upload a PNG or JPEG image with optional tags, artist and nsfw flag. Identical bytes are rejected with the id of the existing image.
// @Tags images
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Image file"
// @Param tags formData string false "Comma separated tags"
// @Param artist formData string false "Artist name"
// @Param nsfw formData string false "NSFW flag"
// @Success 201 {object} response.Response{data=media.UploadResponse} "Image uploaded"
// @Header 201 {string} Location "Path of the stored image"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 403 {object} response.Response "Uploads not allowed"
// @Failure 409 {object} response.Response "Image already uploaded"
// @Failure 413 {object} response.Response "File too large"
// @Failure 415 {object} response.Response "Invalid file type"
// @Failure 429 {object} response.Response "Rate limit exceeded"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /images [post]
func (h *ImageHandlers) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := middleware.GetIdentityFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}
		admissionKey, _ := middleware.GetAdmissionKeyFromContext(r.Context())

		// Policy comes before reading the body
		if err := h.service.CheckPolicy(r.Context(), identity, admissionKey); err != nil {
			writeError(w, err)
			return
		}

		req := ingest.UploadRequest{
			Identity:     identity,
			AdmissionKey: admissionKey,
		}

		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formOverhead)
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, &ingest.Error{Kind: ingest.Validation, Err: ingest.ErrPayloadTooLarge})
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(ingest.ErrMissingPayload))
			return
		}
		defer r.MultipartForm.RemoveAll()

		req.HasForm = true
		req.Tags = r.PostFormValue("tags")
		req.Artist = r.PostFormValue("artist")
		req.NSFW = ingest.ParseNSFW(r.PostFormValue("nsfw"))

		file, header, err := r.FormFile(FormField)
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(ingest.ErrMissingPayload))
			return
		}
		if file != nil {
			defer file.Close()

			// One byte past the limit is enough for the size check to fail
			data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
			if err != nil {
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(ingest.ErrMissingPayload))
				return
			}
			req.Data = data
			req.ContentType = header.Header.Get("Content-Type")
		}

		res, err := h.service.Ingest(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Location", res.Location)
		response.WriteJSON(w, http.StatusCreated, response.RequestOK("Image uploaded successfully", res.Response))
	}
}

// StatusFor maps a pipeline error to its HTTP status
func StatusFor(err error) int {
	switch ingest.KindOf(err) {
	case ingest.AdmissionDenied:
		return http.StatusTooManyRequests
	case ingest.PolicyDenied:
		return http.StatusForbidden
	case ingest.DuplicateContent:
		return http.StatusConflict
	case ingest.Validation:
		switch {
		case errors.Is(err, ingest.ErrPayloadTooLarge):
			return http.StatusRequestEntityTooLarge
		case errors.Is(err, ingest.ErrUnsupportedMediaType):
			return http.StatusUnsupportedMediaType
		default:
			return http.StatusBadRequest
		}
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)

	var dup *ingest.DuplicateError
	if errors.As(err, &dup) {
		response.WriteJSON(w, status, response.ConflictError(err, dup.ExistingID))
		return
	}

	kind := ingest.KindOf(err)
	if kind == ingest.KindUnknown {
		slog.Error("Unexpected upload error", slog.String("error", err.Error()))
		response.WriteJSON(w, status, response.GeneralError(ingest.ErrPersistenceFailure))
		return
	}

	slog.Debug("Upload rejected", slog.String("kind", kind.String()), slog.String("error", err.Error()))
	response.WriteJSON(w, status, response.GeneralError(err))
}
