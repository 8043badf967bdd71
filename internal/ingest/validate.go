package ingest

import (
	"fmt"
	"mime"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/princekumarofficial/gallery-service/internal/config"
	mediaTypes "github.com/princekumarofficial/gallery-service/internal/types/media"
	"github.com/princekumarofficial/gallery-service/internal/types/users"
)

const (
	MaxTags         = 50
	MaxTagLength    = 40
	MaxArtistLength = 30
)

// Any run of separators containing a comma or a newline becomes a single comma
var tagSeparators = regexp.MustCompile(`[ \t\r\n,]*[,\n][ \t\r\n,]*`)

var tagSpacer = strings.NewReplacer("-", " ", "_", " ")

// UploadRequest is one submitted upload as decoded by the transport. HasForm
// reports whether the submission carried form fields at all.
type UploadRequest struct {
	Data         []byte
	ContentType  string
	Tags         string
	Artist       string
	NSFW         bool
	HasForm      bool
	Identity     users.Identity
	AdmissionKey string
}

// Validated is an UploadRequest that passed every check, with normalized metadata
type Validated struct {
	Data     []byte
	Tags     []string
	Artist   *string
	NSFW     bool
	Uploader mediaTypes.Uploader
}

// Rules is the upload policy and validation limits
type Rules struct {
	AllowUploads     bool
	PrivilegedRole   string
	MaxBytes         int64
	AllowedMimeTypes []string
}

func RulesFromConfig(cfg config.Media) Rules {
	return Rules{
		AllowUploads:     cfg.AllowUploads,
		PrivilegedRole:   cfg.PrivilegedRole,
		MaxBytes:         cfg.MaxUploadBytes,
		AllowedMimeTypes: cfg.AllowedMimeTypes,
	}
}

// Permits reports whether identity may upload under the current policy
func (r Rules) Permits(identity users.Identity) bool {
	return r.AllowUploads || identity.HasRole(r.PrivilegedRole)
}

// Validate checks presence, type, size and metadata in that order
func (r Rules) Validate(req UploadRequest) (Validated, error) {
	if len(req.Data) == 0 || !req.HasForm {
		return Validated{}, newError(Validation, ErrMissingPayload)
	}

	if !r.accepts(req.ContentType) {
		return Validated{}, newError(Validation, ErrUnsupportedMediaType)
	}

	if int64(len(req.Data)) > r.MaxBytes {
		return Validated{}, newError(Validation,
			fmt.Errorf("%w, the limit is %s", ErrPayloadTooLarge, humanize.IBytes(uint64(r.MaxBytes))))
	}

	if !r.accepts(mimetype.Detect(req.Data).String()) {
		return Validated{}, newError(Validation, ErrUnsupportedMediaType)
	}

	tags, err := NormalizeTags(req.Tags)
	if err != nil {
		return Validated{}, newError(Validation, err)
	}

	artist, err := NormalizeArtist(req.Artist)
	if err != nil {
		return Validated{}, newError(Validation, err)
	}

	v := Validated{
		Data: req.Data,
		Tags: tags,
		NSFW: req.NSFW,
		Uploader: mediaTypes.Uploader{
			ID:       req.Identity.ID,
			Username: req.Identity.Username,
		},
	}
	if artist != "" {
		v.Artist = &artist
	}

	return v, nil
}

func (r Rules) accepts(contentType string) bool {
	ct := canonicalMime(contentType)
	if ct == "" {
		return false
	}
	for _, allowed := range r.AllowedMimeTypes {
		if canonicalMime(allowed) == ct {
			return true
		}
	}
	return false
}

func canonicalMime(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if mt == "image/jpg" || mt == "image/pjpeg" {
		return "image/jpeg"
	}
	return mt
}

// NormalizeTags turns free text into the stored tag list.
// "a, b ,, c\n d" becomes [a b c d]; empty input yields no tags.
func NormalizeTags(raw string) ([]string, error) {
	joined := tagSeparators.ReplaceAllString(raw, ",")
	joined = strings.Trim(joined, " ,\t\r\n")
	if joined == "" {
		return nil, nil
	}
	joined = tagSpacer.Replace(joined)

	var tags []string
	for _, t := range strings.Split(joined, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		tags = append(tags, t)
	}

	if len(tags) > MaxTags {
		return nil, ErrTooManyTags
	}
	for _, t := range tags {
		if utf8.RuneCountInString(t) > MaxTagLength {
			return nil, ErrTagTooLong
		}
	}

	return tags, nil
}

// NormalizeArtist replaces underscores with spaces and enforces the length limit
func NormalizeArtist(raw string) (string, error) {
	artist := strings.TrimSpace(strings.ReplaceAll(raw, "_", " "))
	if utf8.RuneCountInString(artist) > MaxArtistLength {
		return "", ErrArtistNameTooLong
	}
	return artist, nil
}

// ParseNSFW reads the form flag. Anything that is not a recognizable false value
// but is non-empty counts as set.
func ParseNSFW(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return true
}
