package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Compile-time checks.
var (
	_ Store  = (*LocalStore)(nil)
	_ Stager = (*LocalStore)(nil)
)

// ErrInvalidKey is returned when an object key escapes the store root.
var ErrInvalidKey = errors.New("storage: invalid object key")

// LocalStore implements Store on the local filesystem, keyed by relative
// paths under a root directory. Intended for development and tests; presigned
// URLs are not supported.
type LocalStore struct {
	root    string
	tempDir string
}

// NewLocalStore creates a LocalStore rooted at dir, creating it if needed.
// If dir is empty a directory under os.TempDir() is used.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "avatarforge")
	}

	tempDir := filepath.Join(dir, ".tmp")
	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	return &LocalStore{root: dir, tempDir: tempDir}, nil
}

// Root returns the store's root directory.
func (s *LocalStore) Root() string {
	return s.root
}

// keyPath maps an object key to a path under the root, rejecting traversal.
func (s *LocalStore) keyPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, clean), nil
}

// Upload writes an artifact under the given key.
func (s *LocalStore) Upload(ctx context.Context, key, _ string, data io.Reader) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 - path is derived from a validated key
	if err != nil {
		return fmt.Errorf("create artifact file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close artifact file: %w", err)
	}
	return nil
}

// Download opens an artifact for reading.
func (s *LocalStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path) // #nosec G304 - path is derived from a validated key
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// PresignGet is not supported by LocalStore.
func (s *LocalStore) PresignGet(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", ErrPresignNotSupported
}

// PresignPut is not supported by LocalStore.
func (s *LocalStore) PresignPut(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	return "", ErrPresignNotSupported
}

// StageTemp writes data to a temporary file and returns its path.
// The name is used as a base for the filename with a unique suffix.
func (s *LocalStore) StageTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.CreateTemp(s.tempDir, name+"_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return fileName, nil
}

// CleanupTemp removes the specified temporary files. It continues cleanup
// even if some files fail to delete, returning the first error encountered.
func (s *LocalStore) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove temp file %s: %w", p, err)
			}
		}
	}
	return firstErr
}
