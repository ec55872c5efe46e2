// Package objectstore keeps uploaded resume files under team scoped keys.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")

	unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)
)

// Store writes objects to an afero filesystem rooted at a base directory.
type Store struct {
	fs afero.Fs
}

// NewDir stores objects below dir on the local disk.
func NewDir(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("storage directory is required")
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return New(afero.NewBasePathFs(osFs, dir)), nil
}

// New wraps fs, which is treated as the storage root.
func New(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// Put saves data and returns its key: team_<id>/<base>_<uuid><ext>.
func (s *Store) Put(_ context.Context, data []byte, suggestedName string, teamID int64) (string, error) {
	key := NewKey(suggestedName, teamID)

	if err := s.fs.MkdirAll(path.Dir(key), 0o750); err != nil {
		return "", fmt.Errorf("creating team directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, key, data, 0o640); err != nil {
		return "", fmt.Errorf("writing object %s: %w", key, err)
	}

	return key, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	return afero.Exists(s.fs, key)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := s.fs.Remove(key)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	return nil
}

func (s *Store) Size(_ context.Context, key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	info, err := s.fs.Stat(key)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return 0, fmt.Errorf("stat object %s: %w", key, err)
	}
	return info.Size(), nil
}

// NewKey builds a collision resistant key for a file of the given team.
func NewKey(suggestedName string, teamID int64) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(suggestedName), "\\", "/"))
	ext := path.Ext(name)
	base := strings.Trim(unsafeChars.ReplaceAllString(strings.TrimSuffix(name, ext), "_"), "_")
	if base == "" {
		base = "file"
	}
	if ext = unsafeChars.ReplaceAllString(strings.ToLower(strings.TrimPrefix(ext, ".")), ""); ext != "" {
		ext = "." + ext
	}

	return fmt.Sprintf("team_%d/%s_%s%s", teamID, base, uuid.NewString(), ext)
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
