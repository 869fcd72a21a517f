// Package storage provides the artifact store port and its local-disk and
// S3 implementations. Artifacts (portrait, audio, video, final mux) are
// referenced by opaque object keys, written once and never mutated.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrPresignNotSupported is returned when a presigned URL is requested
// from a backend that cannot issue one.
var ErrPresignNotSupported = errors.New("storage: presigned URLs are not supported")

// Store defines the interface for artifact storage.
type Store interface {
	// Upload writes an artifact under the given key.
	Upload(ctx context.Context, key, contentType string, data io.Reader) error

	// Download opens an artifact for reading.
	// The caller is responsible for closing the returned ReadCloser.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// PresignGet returns a time-limited URL for downloading the artifact.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (url string, err error)

	// PresignPut returns a time-limited URL for uploading an artifact with
	// the given content type.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (url string, err error)
}

// Stager stages artifact bytes on local disk for tools that need file
// paths, such as the ffmpeg combination stage.
type Stager interface {
	// StageTemp writes data to a temporary file and returns its path.
	StageTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// CleanupTemp removes the given temporary files, continuing past
	// individual failures.
	CleanupTemp(ctx context.Context, paths []string) error
}
