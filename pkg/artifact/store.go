// Package artifact persists captured screenshots.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store saves one artifact under key and returns where it ended up.
type Store interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
}

// Key builds the artifact key of a screenshot taken under a capability.
// Keys always use forward slashes.
func Key(capabilitySlug, screenshotName string) string {
	return capabilitySlug + "/" + screenshotName + ".png"
}

// LocalStore writes artifacts below a directory. Saving the same key again
// overwrites the previous file.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

// Save writes data to <dir>/<key>.
func (s *LocalStore) Save(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rel, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return path, nil
}

func cleanKey(key string) (string, error) {
	k := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(filepath.FromSlash(key))), "/")
	if k == "" || k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return k, nil
}

// Multi saves to every store in order. All stores are attempted; the
// location of the first store is returned.
type Multi []Store

// Save implements Store.
func (m Multi) Save(ctx context.Context, key string, data []byte) (string, error) {
	var (
		location string
		errs     []error
	)
	for i, s := range m {
		loc, err := s.Save(ctx, key, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if i == 0 {
			location = loc
		}
	}
	return location, errors.Join(errs...)
}
