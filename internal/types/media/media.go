package media

import "time"

// Uploader is a snapshot of the uploading user taken at creation time
type Uploader struct {
	ID       string `json:"id" db:"uploader_id"`
	Username string `json:"username" db:"uploader_username"`
}

// Comment belongs to an Image; images are created without any
type Comment struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Image represents a gallery image record in the database
type Image struct {
	ID           string    `json:"id" db:"id"`
	OriginalHash string    `json:"-" db:"original_hash"`
	Uploader     Uploader  `json:"uploader"`
	NSFW         bool      `json:"nsfw" db:"nsfw"`
	Artist       *string   `json:"artist,omitempty" db:"artist"`
	Tags         string    `json:"tags" db:"tags"`
	Comments     []Comment `json:"comments"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// ImageSummary is the public view of an Image returned after upload
type ImageSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Uploader  Uploader  `json:"uploader"`
	Tags      string    `json:"tags"`
	Artist    *string   `json:"artist,omitempty"`
	NSFW      bool      `json:"nsfw"`
}

// UploadResponse is the success payload of POST /images
type UploadResponse struct {
	Image    ImageSummary `json:"image"`
	ImageURL string       `json:"image_url"`
	PostURL  string       `json:"post_url"`
}

func (i *Image) Summary() ImageSummary {
	return ImageSummary{
		ID:        i.ID,
		CreatedAt: i.CreatedAt,
		Uploader:  i.Uploader,
		Tags:      i.Tags,
		Artist:    i.Artist,
		NSFW:      i.NSFW,
	}
}
