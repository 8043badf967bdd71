package memory

import (
	"context"
	"sync"
	"time"

	"github.com/princekumarofficial/gallery-service/internal/storage"
	"github.com/princekumarofficial/gallery-service/internal/types/media"
	"github.com/princekumarofficial/gallery-service/internal/types/users"
)

// Memory is a process-local Storage. The fingerprint check and the insert happen
// under one lock, which gives the same uniqueness guarantee as a database constraint.
type Memory struct {
	mu            sync.RWMutex
	images        map[string]*media.Image
	byFingerprint map[string]string
	users         map[string]*users.User
	now           func() time.Time
}

func New() *Memory {
	return &Memory{
		images:        make(map[string]*media.Image),
		byFingerprint: make(map[string]string),
		users:         make(map[string]*users.User),
		now:           time.Now,
	}
}

func (m *Memory) CreateImage(_ context.Context, img *media.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byFingerprint[img.OriginalHash]; ok {
		return storage.ErrDuplicateFingerprint
	}
	if _, ok := m.images[img.ID]; ok {
		return storage.ErrDuplicateID
	}

	img.CreatedAt = m.now().UTC()
	if img.Comments == nil {
		img.Comments = []media.Comment{}
	}

	stored := *img
	m.images[img.ID] = &stored
	m.byFingerprint[img.OriginalHash] = img.ID
	return nil
}

func (m *Memory) FindImageByFingerprint(_ context.Context, fingerprint string) (*media.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byFingerprint[fingerprint]
	if !ok {
		return nil, storage.ErrNotFound
	}

	img := *m.images[id]
	return &img, nil
}

func (m *Memory) ImageExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.images[id]
	return ok, nil
}

func (m *Memory) IncrementUploads(_ context.Context, uploader media.Uploader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[uploader.ID]
	if !ok {
		u = &users.User{
			ID:        uploader.ID,
			Username:  uploader.Username,
			CreatedAt: m.now().UTC().Format(time.RFC3339),
		}
		m.users[uploader.ID] = u
	}
	u.Uploads++
	return nil
}

// User returns a copy of the user's counters
func (m *Memory) User(id string) (users.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return users.User{}, false
	}
	return *u, true
}

// Count returns the number of stored images
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.images)
}
