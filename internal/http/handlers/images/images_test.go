package images

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/princekumarofficial/gallery-service/internal/http/middleware"
	"github.com/princekumarofficial/gallery-service/internal/idgen"
	"github.com/princekumarofficial/gallery-service/internal/ingest"
	"github.com/princekumarofficial/gallery-service/internal/ratelimit"
	"github.com/princekumarofficial/gallery-service/internal/services/media"
	"github.com/princekumarofficial/gallery-service/internal/storage/memory"
	"github.com/princekumarofficial/gallery-service/internal/transcode"
	"github.com/princekumarofficial/gallery-service/internal/types/users"
	"github.com/princekumarofficial/gallery-service/internal/utils/jwt"
)

const (
	testSecret = "test-secret"
	maxUpload  = 16 << 10
)

type server struct {
	handler http.Handler
	store   *memory.Memory
	objects *media.FSStore
}

func newServer(t *testing.T, allowUploads bool, rateMax int64) *server {
	t.Helper()

	ids, err := idgen.New("")
	require.NoError(t, err)

	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), "images", rateMax, time.Minute)
	store := memory.New()
	objects := media.NewFSStoreWithFs(afero.NewMemMapFs())

	svc := ingest.NewService(ingest.Deps{
		Rules: ingest.Rules{
			AllowUploads:     allowUploads,
			PrivilegedRole:   "admin",
			MaxBytes:         maxUpload,
			AllowedMimeTypes: []string{"image/png", "image/jpeg", "image/jpg"},
		},
		PublicBaseURL: "https://gallery.example",
		Limiter:       limiter,
		Index:         ingest.NewStoreIndex(store),
		Transcoder: transcode.NewTranscoder(transcode.Options{
			MainBox:          transcode.Box{Width: 500, Height: 500},
			ImageQuality:     90,
			ThumbnailQuality: 80,
		}),
		Objects: objects,
		Images:  store,
		IDs:     ids,
	})

	h := NewImageHandlers(svc, maxUpload)
	handler := middleware.RateLimitMiddleware(limiter, middleware.ClientIP(nil))(
		middleware.AuthMiddleware(testSecret)(h.Upload()))

	return &server{handler: handler, store: store, objects: objects}
}

type upload struct {
	data        []byte
	contentType string
	fields      map[string]string
	query       string
	roles       []string
	noAuth      bool
	noFile      bool
}

func (s *server) do(t *testing.T, u upload) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range u.fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if !u.noFile {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="upload"`, FormField))
		h.Set("Content-Type", u.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(u.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/images"+u.query, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "198.51.100.10:4000"

	if !u.noAuth {
		token, err := jwt.CreateToken(users.Identity{ID: "u1", Username: "neko", Roles: u.roles}, testSecret, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{R: uint8(w), G: uint8(h), B: 90, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, imaging.JPEG))
	return buf.Bytes()
}

type envelope struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	ID     string `json:"id"`
	Data   struct {
		Image struct {
			ID       string `json:"id"`
			Tags     string `json:"tags"`
			Artist   string `json:"artist"`
			NSFW     bool   `json:"nsfw"`
			Uploader struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"uploader"`
		} `json:"image"`
		ImageURL string `json:"image_url"`
		PostURL  string `json:"post_url"`
	} `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestUploadCreatesImage(t *testing.T) {
	s := newServer(t, true, 10)
	data := jpegBytes(t, 120, 80)

	rec := s.do(t, upload{
		data:        data,
		contentType: "image/jpeg",
		fields:      map[string]string{"tags": "cat, ears", "artist": "some_one", "nsfw": "true"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env := decode(t, rec)
	id := env.Data.Image.ID
	require.NotEmpty(t, id)
	assert.Equal(t, "success", env.Status)
	assert.Equal(t, "/image/"+id+".jpg", rec.Header().Get("Location"))
	assert.Equal(t, "cat,ears", env.Data.Image.Tags)
	assert.Equal(t, "some one", env.Data.Image.Artist)
	assert.True(t, env.Data.Image.NSFW)
	assert.Equal(t, "u1", env.Data.Image.Uploader.ID)
	assert.Equal(t, "neko", env.Data.Image.Uploader.Username)
	assert.Equal(t, "https://gallery.example/image/"+id+".jpg", env.Data.ImageURL)
	assert.Equal(t, "https://gallery.example/post/"+id, env.Data.PostURL)

	_, err := s.objects.Get(context.Background(), media.ImageKey(id))
	assert.NoError(t, err)

	dup := s.do(t, upload{data: data, contentType: "image/jpeg", fields: map[string]string{"tags": "x"}})
	require.Equal(t, http.StatusConflict, dup.Code)
	dupEnv := decode(t, dup)
	assert.Equal(t, "Image already uploaded", dupEnv.Error)
	assert.Equal(t, id, dupEnv.ID)
	assert.Equal(t, 1, s.store.Count())
}

func TestUploadIgnoresQueryFields(t *testing.T) {
	s := newServer(t, true, 10)

	rec := s.do(t, upload{
		data:        jpegBytes(t, 60, 40),
		contentType: "image/jpeg",
		fields:      map[string]string{"tags": "fromform", "artist": "formartist"},
		query:       "?tags=fromquery&artist=queryartist&nsfw=true",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env := decode(t, rec)
	assert.Equal(t, "fromform", env.Data.Image.Tags)
	assert.Equal(t, "formartist", env.Data.Image.Artist)
	assert.False(t, env.Data.Image.NSFW)
}

func TestUploadStatusMapping(t *testing.T) {
	jpeg := jpegBytes(t, 40, 40)

	cases := []struct {
		name string
		u    upload
		want int
		msg  string
	}{
		{
			name: "unauthenticated",
			u:    upload{data: jpeg, contentType: "image/jpeg", noAuth: true},
			want: http.StatusUnauthorized,
		},
		{
			name: "no file",
			u:    upload{fields: map[string]string{"tags": "a"}, noFile: true},
			want: http.StatusBadRequest,
			msg:  "No image and/or form attached",
		},
		{
			name: "declared gif",
			u:    upload{data: jpeg, contentType: "image/gif"},
			want: http.StatusUnsupportedMediaType,
			msg:  "Invalid file type",
		},
		{
			name: "text posing as png",
			u:    upload{data: []byte("hello, definitely not a picture"), contentType: "image/png"},
			want: http.StatusUnsupportedMediaType,
		},
		{
			name: "too large",
			u:    upload{data: append(append([]byte{}, jpeg...), make([]byte, maxUpload)...), contentType: "image/jpeg"},
			want: http.StatusRequestEntityTooLarge,
		},
		{
			name: "body past the form limit",
			u:    upload{data: append(append([]byte{}, jpeg...), make([]byte, maxUpload+formOverhead)...), contentType: "image/jpeg"},
			want: http.StatusRequestEntityTooLarge,
			msg:  "File too large",
		},
		{
			name: "too many tags",
			u:    upload{data: jpeg, contentType: "image/jpeg", fields: map[string]string{"tags": strings.Repeat("t,", 60)}},
			want: http.StatusBadRequest,
			msg:  "A post can only have up to 50 tags",
		},
		{
			name: "tag too long",
			u:    upload{data: jpeg, contentType: "image/jpeg", fields: map[string]string{"tags": strings.Repeat("t", 41)}},
			want: http.StatusBadRequest,
			msg:  "Tags have a maximum length of 40 characters",
		},
		{
			name: "artist too long",
			u:    upload{data: jpeg, contentType: "image/jpeg", fields: map[string]string{"artist": strings.Repeat("a", 31)}},
			want: http.StatusBadRequest,
			msg:  "The artist field has a maximum length of 30 characters",
		},
		{
			name: "undecodable jpeg",
			u:    upload{data: jpeg[:60], contentType: "image/jpeg"},
			want: http.StatusInternalServerError,
			msg:  "Error processing image",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newServer(t, true, 10)
			rec := s.do(t, tc.u)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
			if tc.msg != "" {
				assert.Equal(t, tc.msg, decode(t, rec).Error)
			}
			assert.Equal(t, 0, s.store.Count())
		})
	}
}

func TestUploadPolicyDeniedIsRefunded(t *testing.T) {
	s := newServer(t, false, 2)
	jpeg := jpegBytes(t, 40, 40)

	// More denied attempts than the window allows; each one is refunded
	for i := 0; i < 5; i++ {
		rec := s.do(t, upload{data: jpeg, contentType: "image/jpeg"})
		require.Equal(t, http.StatusForbidden, rec.Code, "attempt %d", i)
		assert.Equal(t, "Image uploads not allowed", decode(t, rec).Error)
	}

	rec := s.do(t, upload{data: jpeg, contentType: "image/jpeg", roles: []string{"admin"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestUploadRateLimited(t *testing.T) {
	s := newServer(t, true, 2)

	for i := 0; i < 2; i++ {
		rec := s.do(t, upload{noFile: true})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}

	rec := s.do(t, upload{data: jpegBytes(t, 40, 40), contentType: "image/jpeg"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, 0, s.store.Count())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, StatusFor(ratelimit.ErrLimited))
	assert.Equal(t, http.StatusConflict, StatusFor(&ingest.DuplicateError{ExistingID: "x"}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(fmt.Errorf("boom")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(&ingest.Error{Kind: ingest.PersistenceFailure, Err: ingest.ErrPersistenceFailure}))
}
