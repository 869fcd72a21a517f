package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestLocalStore_UploadDownload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	content := "final video bytes"
	if err := store.Upload(ctx, "renders/final/job-1.mp4", "video/mp4", strings.NewReader(content)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rc, err := store.Download(ctx, "renders/final/job-1.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != content {
		t.Errorf("expected %q, got %q", content, string(data))
	}
}

func TestLocalStore_UploadOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upload(ctx, "k", "text/plain", strings.NewReader("one")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Upload(ctx, "k", "text/plain", strings.NewReader("two")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rc, err := store.Download(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	if string(data) != "two" {
		t.Errorf("expected overwrite, got %q", string(data))
	}
}

func TestLocalStore_DownloadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Download(context.Background(), "renders/final/missing.mp4")
	if err == nil {
		t.Error("expected error for missing artifact")
	}
}

func TestLocalStore_RejectsTraversalKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []string{
		"../outside",
		"a/../../outside",
		"/etc/passwd",
		".",
	}

	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			err := store.Upload(ctx, key, "text/plain", strings.NewReader("x"))
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Upload(%q): expected ErrInvalidKey, got %v", key, err)
			}
			_, err = store.Download(ctx, key)
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Download(%q): expected ErrInvalidKey, got %v", key, err)
			}
		})
	}
}

func TestLocalStore_PresignNotSupported(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.PresignGet(ctx, "k", time.Hour)
	if !errors.Is(err, ErrPresignNotSupported) {
		t.Errorf("expected ErrPresignNotSupported, got %v", err)
	}
	_, err = store.PresignPut(ctx, "k", "video/mp4", time.Hour)
	if !errors.Is(err, ErrPresignNotSupported) {
		t.Errorf("expected ErrPresignNotSupported, got %v", err)
	}
}

func TestLocalStore_StageAndCleanupTemp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	path, err := store.StageTemp(ctx, "mux_video", strings.NewReader("staged bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path) // #nosec G304 - test-controlled path
	if err != nil {
		t.Fatalf("failed to read staged file: %v", err)
	}
	if string(data) != "staged bytes" {
		t.Errorf("expected staged content, got %q", string(data))
	}
	if filepath.Base(path) == "mux_video" {
		t.Error("expected a unique suffix on the staged filename")
	}

	if err := store.CleanupTemp(ctx, []string{path}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected staged file to be removed")
	}
}

func TestLocalStore_CleanupTempToleratesMissing(t *testing.T) {
	store := newTestStore(t)

	err := store.CleanupTemp(context.Background(), []string{filepath.Join(store.Root(), ".tmp", "never_existed")})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLocalStore_CancelledContext(t *testing.T) {
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Upload(ctx, "k", "text/plain", strings.NewReader("x")); err == nil {
		t.Error("expected error for cancelled context")
	}
	if _, err := store.Download(ctx, "k"); err == nil {
		t.Error("expected error for cancelled context")
	}
	if _, err := store.StageTemp(ctx, "n", strings.NewReader("x")); err == nil {
		t.Error("expected error for cancelled context")
	}
}
