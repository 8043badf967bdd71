package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// FSStore keeps derivatives on a filesystem below a configured root
type FSStore struct {
	fs afero.Fs
}

// NewFSStore roots the store at dir on the OS filesystem
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return NewFSStoreWithFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// NewFSStoreWithFs wraps an existing afero filesystem
func NewFSStoreWithFs(fs afero.Fs) *FSStore {
	return &FSStore{fs: fs}
}

// Put writes to a temporary file first so readers never see a partial object
func (s *FSStore) Put(_ context.Context, key string, data []byte, _ string) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", key, err)
	}

	tmp := name + ".tmp-" + uuid.NewString()
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", key, err)
	}

	return nil
}

func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	name, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	root := strings.TrimSuffix(prefix, "/")
	if root == "" {
		root = "."
	}

	exists, err := afero.DirExists(s.fs, root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", prefix, err)
	}
	if !exists {
		return nil, nil
	}

	var objects []ObjectInfo
	err = afero.Walk(s.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.Contains(info.Name(), ".tmp-") {
			return nil
		}

		key := filepath.ToSlash(p)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	return objects, nil
}

func cleanKey(key string) (string, error) {
	name := path.Clean(strings.TrimPrefix(key, "/"))
	if name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return name, nil
}
